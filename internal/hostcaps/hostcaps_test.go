package hostcaps

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

type fakePublisher struct {
	broadcasts []busmsg.MessageType
	spawned    [][]string
	parent     busmsg.Scope
	hasParent  bool
	workingDir string
}

func (p *fakePublisher) Broadcast(_ context.Context, _ busmsg.Scope, msgType busmsg.MessageType, _ any) error {
	p.broadcasts = append(p.broadcasts, msgType)
	return nil
}

func (p *fakePublisher) SpawnActorSet(_ context.Context, _ busmsg.Scope, actorIDs []string, _ string) (busmsg.Scope, error) {
	p.spawned = append(p.spawned, actorIDs)
	return busmsg.NewScope(), nil
}

func (p *fakePublisher) ParentScope(busmsg.Scope) (busmsg.Scope, bool) { return p.parent, p.hasParent }
func (p *fakePublisher) HostWorkingDirectory() string                 { return p.workingDir }
func (p *fakePublisher) MarkScopeClosed(busmsg.Scope)                 {}

func TestContextResolveAnswersPrecomputedCapabilities(t *testing.T) {
	parent := busmsg.NewScope()
	ctx := Context{ParentScope: &parent, WorkingDir: "/work"}

	data, ok := ctx.Resolve(AgentGetParentScope)
	require.True(t, ok)
	var got busmsg.Scope
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, parent, got)

	data, ok = ctx.Resolve(HostInfoGetHostWorkingDirectory)
	require.True(t, ok)
	var dir string
	require.NoError(t, json.Unmarshal(data, &dir))
	require.Equal(t, "/work", dir)

	_, ok = ctx.Resolve(MessagingBroadcast)
	require.False(t, ok)
}

func TestTableReplayAppliesBroadcastAndSpawn(t *testing.T) {
	pub := &fakePublisher{}
	scope := busmsg.NewScope()
	table := NewTable(scope, pub, nil)

	calls := []Call{
		{Kind: MessagingBroadcast, MessageType: busmsg.ToolsAvailable, Payload: json.RawMessage(`{}`)},
		{Kind: AgentSpawnAgent, ActorIDs: []string{"wasmind:echo"}, Role: "tool"},
		{Kind: AgentGetParentScope},
	}
	require.NoError(t, table.Replay(context.Background(), calls))
	require.Equal(t, []busmsg.MessageType{busmsg.ToolsAvailable}, pub.broadcasts)
	require.Equal(t, [][]string{{"wasmind:echo"}}, pub.spawned)
}

func TestTableReplayRejectsUnknownKind(t *testing.T) {
	table := NewTable(busmsg.NewScope(), &fakePublisher{}, nil)
	err := table.Replay(context.Background(), []Call{{Kind: "bogus"}})
	require.Error(t, err)
}
