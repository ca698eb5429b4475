package runtime

import (
	"sort"
	"sync"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/associatedtoken"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/computebudget"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// ProgramRegistry maps program ids to native executors. It is also the
// resolver used for cross-program invocation.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]syscall.Program
	names    map[types.Pubkey]string
}

var _ syscall.ProgramResolver = (*ProgramRegistry)(nil)

// NewProgramRegistry creates an empty registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]syscall.Program),
		names:    make(map[types.Pubkey]string),
	}
}

// RegisterBuiltins registers the native programs under their well-known ids.
func RegisterBuiltins(r *ProgramRegistry) {
	r.RegisterProgramWithName(types.SystemProgramID, "system", system.New())
	r.RegisterProgramWithName(types.TokenProgramID, "token", token.New())
	r.RegisterProgramWithName(types.AssociatedTokenProgramID, "associated_token", associatedtoken.New())
	r.RegisterProgramWithName(types.MetadataProgramID, "metadata", metadata.New())
	r.RegisterProgramWithName(types.ComputeBudgetProgramID, "compute_budget", computebudget.New())
}

// RegisterProgram registers a program under id.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, p syscall.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = p
}

// RegisterProgramWithName registers a program with a name used in logs and metrics.
func (r *ProgramRegistry) RegisterProgramWithName(id types.Pubkey, name string, p syscall.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = p
	r.names[id] = name
}

func (r *ProgramRegistry) GetProgram(id types.Pubkey) (syscall.Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// ProgramName returns the registered name, or the base58 id if none was given.
func (r *ProgramRegistry) ProgramName(id types.Pubkey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return id.String()
}

func (r *ProgramRegistry) HasProgram(id types.Pubkey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.programs[id]
	return ok
}

// ListPrograms returns the registered ids in key order.
func (r *ProgramRegistry) ListPrograms() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}
