package conversation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/parleyhq/parley/types"
)

// AgentRegistry is a memory-resident mapping from agent id to agent
// configuration, scoped to one conversation run. Construct one registry
// per run and pass it to the executor; sharing a registry across
// concurrent runs risks one run evicting registrations the other needs.
type AgentRegistry struct {
	agents map[string]types.Agent
	mu     sync.RWMutex
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]types.Agent),
	}
}

// Register stores an agent, overwriting any existing entry with the same id.
func (r *AgentRegistry) Register(agent types.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
}

// Unregister removes an agent. Removing an unknown id is a no-op.
func (r *AgentRegistry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Get returns the agent for the given id, or an AGENT_NOT_FOUND error.
func (r *AgentRegistry) Get(agentID string) (types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return types.Agent{}, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not registered", agentID))
	}
	return a, nil
}

// List returns all registered agents sorted by id.
func (r *AgentRegistry) List() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
