//go:build !windows

package platform

import (
	"context"

	"go.aimuz.me/chatwatch/access"
)

// Classifier reports access.ErrUnsupported outside Windows.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a classifier for rules.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

func (c *Classifier) Foreground(context.Context) (access.WindowHandle, error) {
	return 0, access.ErrUnsupported
}

func (c *Classifier) Classify(context.Context, access.WindowHandle) (access.WindowInfo, error) {
	return access.WindowInfo{}, access.ErrUnsupported
}

func (c *Classifier) MenuVisible(context.Context) (bool, error) {
	return false, access.ErrUnsupported
}
