package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFocus struct {
	batched    FocusSnapshot
	batchedErr error
	plain      FocusSnapshot
	plainErr   error
	plainCalls int
}

func (s *stubFocus) FocusedSnapshot(context.Context) (FocusSnapshot, error) {
	s.plainCalls++
	return s.plain, s.plainErr
}

func (s *stubFocus) CachedFocusedSnapshot(context.Context) (FocusSnapshot, error) {
	return s.batched, s.batchedErr
}

func (s *stubFocus) FocusedSelected(context.Context) (bool, error) {
	return false, ErrUnsupported
}

func TestQuery_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Query(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		time.Sleep(time.Second)
		return 1, nil
	})

	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestQuery_RecoversPanic(t *testing.T) {
	_, err := Query(context.Background(), time.Second, func(context.Context) (string, error) {
		panic("com failure")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "com failure")
}

func TestQuery_PassesResult(t *testing.T) {
	v, err := Query(context.Background(), 0, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestReadFocus(t *testing.T) {
	tests := []struct {
		name          string
		focus         *stubFocus
		wantName      string
		wantErr       error
		wantPlainCall bool
	}{
		{
			name:     "batched path",
			focus:    &stubFocus{batched: FocusSnapshot{DisplayName: "batched"}},
			wantName: "batched",
		},
		{
			name: "unsupported falls back",
			focus: &stubFocus{
				batchedErr: ErrUnsupported,
				plain:      FocusSnapshot{DisplayName: "plain"},
			},
			wantName:      "plain",
			wantPlainCall: true,
		},
		{
			name: "transient falls back",
			focus: &stubFocus{
				batchedErr: ErrStaleElement,
				plain:      FocusSnapshot{DisplayName: "plain"},
			},
			wantName:      "plain",
			wantPlainCall: true,
		},
		{
			name: "both fail",
			focus: &stubFocus{
				batchedErr: ErrUnsupported,
				plainErr:   ErrUnavailable,
			},
			wantErr:       ErrUnavailable,
			wantPlainCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewSnapshotCache(tt.focus, time.Second)
			snap, err := ReadFocus(context.Background(), sc, tt.focus, time.Second)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantName, snap.DisplayName)
			}
			assert.Equal(t, tt.wantPlainCall, tt.focus.plainCalls > 0)
		})
	}
}

func TestStripAccelerator(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"&File", "File"},
		{"Save &As", "Save As"},
		{"No marker", "No marker"},
		{"Fish && Chips", "Fish && Chips"},
		{"&&Keep &Go", "&&Keep Go"},
		{"", ""},
		{"&", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripAccelerator(tt.in))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	// "é" decomposed vs composed.
	assert.Equal(t, "caf\u00e9", NormalizeName(" cafe\u0301 "))
}

func TestFilter_Allows(t *testing.T) {
	f := Filter{
		IgnoreClasses:       []string{"EVA_VH_ListControl_Dblclk"},
		IgnoreAutomationIDs: []string{"searchBox"},
	}

	assert.True(t, f.Allows(FocusSnapshot{DisplayName: "Alice"}))
	assert.False(t, f.Allows(FocusSnapshot{DisplayName: "Alice", ClassName: "EVA_VH_ListControl_Dblclk"}))
	assert.False(t, f.Allows(FocusSnapshot{DisplayName: "Search", AutomationID: "searchBox"}))
	assert.False(t, f.Allows(FocusSnapshot{DisplayName: "   "}))
}

func TestChangeKind_Significant(t *testing.T) {
	assert.True(t, ChangeChildAdded.Significant())
	assert.True(t, ChangeChildrenInvalidated.Significant())
	assert.True(t, ChangeChildrenBulkAdded.Significant())
	assert.False(t, ChangeChildRemoved.Significant())
	assert.False(t, ChangeChildrenReordered.Significant())
}

func TestBackend_Validate(t *testing.T) {
	err := Backend{}.Validate()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupported))
}
