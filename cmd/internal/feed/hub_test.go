package feed

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"kodbank/cmd/internal/ledger"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event within 1s")
		return Event{}
	}
}

func TestHub_PublishTransferReachesBothParties(t *testing.T) {
	t.Parallel()

	h := testHub()
	sender := NewClient("acc-a", 8)
	recipient := NewClient("acc-b", 8)
	h.Subscribe(sender)
	h.Subscribe(recipient)

	h.PublishTransfer(ledger.Result{
		SenderID:         "acc-a",
		RecipientID:      "acc-b",
		Amount:           250,
		SenderBalance:    750,
		RecipientBalance: 1250,
	})

	sev := recvEvent(t, sender)
	if sev.Type != "balance" || sev.AccountID != "acc-a" || sev.Balance != 750 {
		t.Fatalf("sender event=%+v", sev)
	}
	if sev.Counterparty != "acc-b" || sev.Amount != -250 {
		t.Fatalf("sender event=%+v want counterparty acc-b, amount -250", sev)
	}

	rev := recvEvent(t, recipient)
	if rev.AccountID != "acc-b" || rev.Balance != 1250 || rev.Amount != 250 || rev.Counterparty != "acc-a" {
		t.Fatalf("recipient event=%+v", rev)
	}
}

func TestHub_UninvolvedAccountsSeeNothing(t *testing.T) {
	t.Parallel()

	h := testHub()
	bystander := NewClient("acc-c", 8)
	h.Subscribe(bystander)

	h.PublishTransfer(ledger.Result{SenderID: "acc-a", RecipientID: "acc-b", Amount: 10})

	select {
	case ev := <-bystander.Send:
		t.Fatalf("bystander received %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_MultipleSubscriptionsPerAccount(t *testing.T) {
	t.Parallel()

	h := testHub()
	first := NewClient("acc-a", 8)
	second := NewClient("acc-a", 8)
	h.Subscribe(first)
	h.Subscribe(second)

	h.PublishTransfer(ledger.Result{SenderID: "acc-a", RecipientID: "acc-b", Amount: 5, SenderBalance: 995})

	if ev := recvEvent(t, first); ev.Balance != 995 {
		t.Fatalf("first=%+v", ev)
	}
	if ev := recvEvent(t, second); ev.Balance != 995 {
		t.Fatalf("second=%+v", ev)
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	h := testHub()
	c := NewClient("acc-a", 8)
	h.Subscribe(c)
	h.Unsubscribe(c)
	h.Unsubscribe(c) // safe to repeat

	h.PublishTransfer(ledger.Result{SenderID: "acc-a", RecipientID: "acc-b", Amount: 5})

	select {
	case ev := <-c.Send:
		t.Fatalf("unsubscribed client received %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	h := testHub()
	c := NewClient("acc-a", wsMinSendQueueSize)
	h.Subscribe(c)

	// Publish well past queue capacity without draining; must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < wsMinSendQueueSize*4; i++ {
			h.PublishTransfer(ledger.Result{SenderID: "acc-a", RecipientID: "acc-b", Amount: 1})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full client queue")
	}

	if got := len(c.Send); got != wsMinSendQueueSize {
		t.Fatalf("queued=%d want %d (overflow must drop)", got, wsMinSendQueueSize)
	}
}

func TestHub_ClosedClientDoesNotReceive(t *testing.T) {
	t.Parallel()

	h := testHub()
	c := NewClient("acc-a", 8)
	h.Subscribe(c)
	c.Close()

	h.PublishTransfer(ledger.Result{SenderID: "acc-a", RecipientID: "acc-b", Amount: 1})

	select {
	case ev := <-c.Send:
		t.Fatalf("closed client received %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
