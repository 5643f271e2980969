package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/chatwatch/access"
)

func TestRules_Kind(t *testing.T) {
	rules := Rules{
		Process:     "KakaoTalk.exe",
		MainClasses: []string{"EVA_Window_Dblclk"},
		ChatClasses: []string{"#32770"},
	}
	tests := []struct {
		name    string
		process string
		class   string
		want    access.WindowKind
	}{
		{"main", `C:\Program Files\Kakao\KakaoTalk.exe`, "EVA_Window_Dblclk", access.WindowMain},
		{"chat", "kakaotalk.exe", "#32770", access.WindowChat},
		{"menu", "KakaoTalk.exe", DefaultMenuClass, access.WindowMenu},
		{"unknown class", "KakaoTalk.exe", "Tooltip", access.WindowNone},
		{"other process", "notepad.exe", "#32770", access.WindowNone},
		{"no process", "", "#32770", access.WindowNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Kind(tt.process, tt.class))
		})
	}
}

func TestRules_AnyClassIsMainWithoutList(t *testing.T) {
	rules := Rules{Process: "chat.exe", ChatClasses: []string{"Room"}}
	assert.Equal(t, access.WindowMain, rules.Kind("chat.exe", "Whatever"))
	assert.Equal(t, access.WindowChat, rules.Kind("chat.exe", "Room"))
}

func TestNewBackend(t *testing.T) {
	b := NewBackend(Rules{Process: "chat.exe"})
	require.NoError(t, b.Validate())

	_, err := b.Focus.FocusedSnapshot(context.Background())
	assert.ErrorIs(t, err, access.ErrUnsupported)
	_, err = b.Events.SubscribeStructure(access.ListHandle{}, nil)
	assert.ErrorIs(t, err, access.ErrUnsupported)
	assert.False(t, b.Tree.ListExists(context.Background(), access.ListHandle{}, 0))
}
