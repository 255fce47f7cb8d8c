package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNotifierDropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(1)
	ctx := WithNotifier(context.Background(), n)

	Send(ctx, Status{Node: "router", Message: "first"})
	Send(ctx, Status{Node: "router", Message: "second"})

	got := <-n.C()
	assert.Equal(t, "first", got.Message)
	select {
	case extra := <-n.C():
		t.Fatalf("unexpected queued status: %+v", extra)
	default:
	}
}

func TestSendAfterCloseIsNoop(t *testing.T) {
	n := NewChannelNotifier(2)
	n.Close()
	n.Close()

	require.NotPanics(t, func() {
		Send(WithNotifier(context.Background(), n), Status{Node: "answer"})
	})
}

func TestSendWithoutNotifier(t *testing.T) {
	require.NotPanics(t, func() {
		Send(context.Background(), Status{Node: "answer"})
	})
}

func TestSendRecoversPanickingNotifier(t *testing.T) {
	ctx := WithNotifier(context.Background(), NotifierFunc(func(context.Context, Status) {
		panic("boom")
	}))
	require.NotPanics(t, func() {
		Send(ctx, Status{Node: "router"})
	})
}
