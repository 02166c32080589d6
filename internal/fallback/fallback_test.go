package fallback

import (
	"context"
	"errors"
	"testing"
)

func TestFirst(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tests := []struct {
		name       string
		strategies []Strategy[int]
		wantName   string
		wantValue  int
		wantErr    error
	}{
		{
			name: "first success wins",
			strategies: []Strategy[int]{
				{Name: "a", Run: func(context.Context) (int, error) { return 1, nil }},
				{Name: "b", Run: func(context.Context) (int, error) { return 2, nil }},
			},
			wantName:  "a",
			wantValue: 1,
		},
		{
			name: "skip and failure fall through",
			strategies: []Strategy[int]{
				{Name: "a", Run: func(context.Context) (int, error) { return 0, ErrSkip }},
				{Name: "b", Run: func(context.Context) (int, error) { return 0, boom }},
				{Name: "c", Run: func(context.Context) (int, error) { return 3, nil }},
			},
			wantName:  "c",
			wantValue: 3,
		},
		{
			name: "all skipped",
			strategies: []Strategy[int]{
				{Name: "a", Run: func(context.Context) (int, error) { return 0, ErrSkip }},
			},
			wantErr: ErrExhausted,
		},
		{
			name: "failures are reported",
			strategies: []Strategy[int]{
				{Name: "a", Run: func(context.Context) (int, error) { return 0, boom }},
			},
			wantErr: boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := First(context.Background(), tc.strategies...)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != tc.wantName || got.Value != tc.wantValue {
				t.Errorf("First = (%s, %d), want (%s, %d)", got.Name, got.Value, tc.wantName, tc.wantValue)
			}
		})
	}
}

func TestFirst_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := First(ctx, Strategy[int]{Name: "a", Run: func(context.Context) (int, error) {
		called = true
		return 1, nil
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("strategy ran on a cancelled context")
	}
}
