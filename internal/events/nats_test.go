package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func testProposal() *action.Proposal {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	return &action.Proposal{
		ID:         "act-42",
		CompanyID:  "acme",
		ActionType: action.TypeAcceptance,
		Agent:      "booking-agent",
		RiskLevel:  action.RiskLow,
		RuleID:     "r-1",
		Status:     action.StatusAutoExecuted,
		CreatedAt:  now,
		ExecutedAt: &now,
	}
}

func TestNATSBroadcaster_PublishesActionEvent(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("govern.actions.acme.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	b := NewNATSBroadcaster(nc, "", nil)
	p := testProposal()
	require.NoError(t, b.Publish(context.Background(), ActionEvent(p, "system", p.CreatedAt)))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "govern.actions.acme.auto_executed", msg.Subject)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, KindActionTransition, got.Kind)
	assert.Equal(t, "act-42", got.ActionID)
	assert.Equal(t, "auto_executed", got.Status)
	assert.Equal(t, "low", got.Risk)
	require.NotNil(t, got.ExecutedAt)
	assert.True(t, p.ExecutedAt.Equal(*got.ExecutedAt))

	// Borrowed connections stay open after Close.
	require.NoError(t, b.Close())
	assert.True(t, nc.IsConnected())
}

func TestNATSBroadcaster_PublishesRuleEvent(t *testing.T) {
	server := startTestNATSServer(t)

	b, err := ConnectNATS(server.ClientURL(), "ops.gov", nil)
	require.NoError(t, err)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("ops.gov.rules.*.promoted")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	r := &rules.Rule{ID: "r-1", CompanyID: "acme", ActionType: action.TypeOutreach, Agent: "*", RiskLevel: action.RiskLow}
	require.NoError(t, b.Publish(context.Background(), RuleEvent(KindRulePromoted, r, "system", time.Now())))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ops.gov.rules.acme.promoted", msg.Subject)

	require.NoError(t, b.Close())
}

func TestNATSBroadcaster_SubjectSanitizesTokens(t *testing.T) {
	b := NewNATSBroadcaster(nil, "govern", nil)
	subject := b.Subject(Event{Kind: KindActionTransition, CompanyID: "acme.inc *east*", Status: "pending"})
	assert.Equal(t, "govern.actions.acme_inc__east_.pending", subject)

	assert.Equal(t, "govern.actions._.pending", b.Subject(Event{Status: "pending"}))
}

func TestNATSBroadcaster_CancelledContext(t *testing.T) {
	b := NewNATSBroadcaster(nil, "govern", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, Event{}), context.Canceled)
}

func TestNop(t *testing.T) {
	var b Broadcaster = Nop{}
	assert.NoError(t, b.Publish(context.Background(), Event{}))
	assert.NoError(t, b.Close())
}
