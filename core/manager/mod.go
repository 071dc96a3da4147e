// Package manager implements the contract manager: it owns the in-memory
// contract registry, orchestrates the virtual machine, enforces the contract
// lifecycle and persists contracts and events as JSON files.
//
// The manager is single-threaded by contract: one transaction's full
// lifecycle (validate, execute, commit, persist) runs to completion before
// the next one is accepted. It holds no internal lock; the block-application
// pipeline is responsible for serializing access so that no two transactions
// targeting the same contract execute concurrently.
package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/porwchain/porw"
	"github.com/porwchain/porw/core/chainstate"
	"github.com/porwchain/porw/core/config"
	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/txn"
	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/core/vm"
	"github.com/porwchain/porw/core/vm/scripted"
)

const (
	contractsDirName = "contracts"
	eventsDirName    = "events"
)

// Manager owns the contract registry and drives executions end to end.
//
// - implements vm.Registry
type Manager struct {
	cfg      config.Engine
	registry map[string]*contract.SmartContract
	machine  *vm.Machine
	chain    chainstate.Provider
	watcher  *contract.Watcher
	metrics  *managerMetrics
	logger   zerolog.Logger
}

// NewManager creates a manager rooted at the configured directory and loads
// every persisted contract into the registry.
func NewManager(cfg config.Engine, chain chainstate.Provider) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		registry: map[string]*contract.SmartContract{},
		chain:    chain,
		watcher:  contract.NewWatcher(),
		metrics:  newMetrics(),
		logger:   porw.Logger.With().Str("component", "manager").Logger(),
	}

	m.machine = vm.NewMachine(m,
		vm.WithCosts(cfg.Costs()),
		vm.WithDeployDivisor(cfg.DeployDivisor),
		vm.WithBackend(contract.Scripted, scripted.NewBackend(time.Duration(cfg.ScriptDeadline))),
	)

	for _, dir := range []string{m.contractsDir(), m.eventsDir()} {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, xerrors.Errorf("couldn't create directory: %v", err)
		}
	}

	err := m.loadContracts()
	if err != nil {
		return nil, xerrors.Errorf("couldn't load contracts: %v", err)
	}

	return m, nil
}

func (m *Manager) contractsDir() string {
	return filepath.Join(m.cfg.Dir, contractsDirName)
}

func (m *Manager) eventsDir() string {
	return filepath.Join(m.cfg.Dir, eventsDirName)
}

func (m *Manager) loadContracts() error {
	matches, err := filepath.Glob(filepath.Join(m.contractsDir(), "contract_*.json"))
	if err != nil {
		return xerrors.Errorf("couldn't list files: %v", err)
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return xerrors.Errorf("while reading '%s': %v", path, err)
		}

		c := &contract.SmartContract{}

		err = json.Unmarshal(data, c)
		if err != nil {
			return xerrors.Errorf("while parsing '%s': %v", path, err)
		}

		if c.Storage == nil {
			c.Storage = map[string]value.V{}
		}

		m.registry[c.ID] = c
	}

	m.metrics.contracts.Set(float64(len(m.registry)))

	if len(m.registry) > 0 {
		m.logger.Info().Int("count", len(m.registry)).Msg("contracts loaded")
	}

	return nil
}

// Get implements vm.Registry. It returns the contract of the identifier.
func (m *Manager) Get(id string) (*contract.SmartContract, bool) {
	c, ok := m.registry[id]

	return c, ok
}

// Register implements vm.Registry. It stores a newly deployed contract.
func (m *Manager) Register(c *contract.SmartContract) error {
	if _, ok := m.registry[c.ID]; ok {
		return xerrors.Errorf("contract '%s' already registered", c.ID)
	}

	m.registry[c.ID] = c
	m.metrics.contracts.Set(float64(len(m.registry)))

	return nil
}

// GetContract returns the contract of the identifier.
func (m *Manager) GetContract(id string) (*contract.SmartContract, bool) {
	return m.Get(id)
}

// ListContracts returns every registered contract, sorted by identifier.
func (m *Manager) ListContracts() []*contract.SmartContract {
	out := make([]*contract.SmartContract, 0, len(m.registry))
	for _, c := range m.registry {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// MetricsRegistry returns the prometheus registry holding the manager
// collectors, for the node to expose.
func (m *Manager) MetricsRegistry() *prometheus.Registry {
	return m.metrics.registry
}

// Watch registers an observer notified of every committed contract event.
func (m *Manager) Watch(obs contract.Observer) {
	m.watcher.Add(obs)
}

// Unwatch removes a previously registered observer.
func (m *Manager) Unwatch(obs contract.Observer) {
	m.watcher.Remove(obs)
}

// DeployContract validates the transaction, runs the deployment through the
// machine and activates the new contract. The contract is persisted twice,
// once raw and once with the active state, so the persisted active flag
// survives a failure in between.
func (m *Manager) DeployContract(tx *txn.Transaction) contract.ExecutionResult {
	logger := m.logger.With().Str("id", xid.New().String()).Str("tx", tx.ID).Logger()

	err := tx.Validate()
	if err != nil {
		m.metrics.observe(outcomeRejected, 0)

		return contract.Failed(0, fmt.Sprintf("transaction rejected: %v", err))
	}

	if !tx.IsDeployment() {
		m.metrics.observe(outcomeRejected, 0)

		return contract.Failed(0, "transaction rejected: not a deployment")
	}

	snap, err := m.snapshot()
	if err != nil {
		m.metrics.observe(outcomeFailed, 0)

		return contract.Failed(0, fmt.Sprintf("couldn't read chain state: %v", err))
	}

	res := m.machine.Execute(nil, tx, snap)
	if !res.Success {
		logger.Info().Str("error", res.Error).Msg("deployment failed")
		m.metrics.observe(outcomeFailed, res.GasUsed)

		return res
	}

	c, ok := m.Get(res.ReturnValue.Str())
	if !ok {
		m.metrics.observe(outcomeFailed, res.GasUsed)

		return contract.Failed(res.GasUsed, "deployed contract not found in registry")
	}

	err = m.persistContract(c)
	if err != nil {
		logger.Err(err).Msg("couldn't persist contract")
	}

	c.State = contract.Active
	c.UpdatedAt = time.Now().Unix()

	err = m.persistContract(c)
	if err != nil {
		logger.Err(err).Msg("couldn't persist contract")
	}

	logger.Info().Str("contract", c.ID).Msg("contract active")
	m.metrics.observe(outcomeOK, res.GasUsed)

	return res
}

// ExecuteTransaction runs a call or a transfer against an active contract,
// committing state changes and persisting contract and events on success.
// Deployments are delegated to DeployContract.
func (m *Manager) ExecuteTransaction(tx *txn.Transaction) contract.ExecutionResult {
	if tx.IsDeployment() {
		return m.DeployContract(tx)
	}

	logger := m.logger.With().Str("id", xid.New().String()).Str("tx", tx.ID).Logger()

	err := tx.Validate()
	if err != nil {
		m.metrics.observe(outcomeRejected, 0)

		return contract.Failed(0, fmt.Sprintf("transaction rejected: %v", err))
	}

	c, ok := m.Get(tx.ContractID)
	if !ok {
		m.metrics.observe(outcomeFailed, 0)

		return contract.Failed(0, fmt.Sprintf("unknown contract '%s'", tx.ContractID))
	}

	if c.State != contract.Active {
		m.metrics.observe(outcomeFailed, 0)

		return contract.Failed(0,
			fmt.Sprintf("contract '%s' is %s, not active", c.ID, c.State))
	}

	snap, err := m.snapshot()
	if err != nil {
		m.metrics.observe(outcomeFailed, 0)

		return contract.Failed(0, fmt.Sprintf("couldn't read chain state: %v", err))
	}

	res := m.machine.Execute(c, tx, snap)
	if !res.Success {
		logger.Info().Str("error", res.Error).Msg("execution failed")
		m.metrics.observe(outcomeFailed, res.GasUsed)

		return res
	}

	for key, v := range res.StateChanges {
		c.Storage[key] = v
	}

	c.Version++
	c.UpdatedAt = time.Now().Unix()

	err = m.persistContract(c)
	if err != nil {
		logger.Err(err).Msg("couldn't persist contract")
	}

	for _, event := range res.Events {
		err = m.persistEvent(event)
		if err != nil {
			logger.Err(err).Str("event", event.Name).Msg("couldn't persist event")
		}

		m.watcher.Notify(event)
	}

	m.metrics.observe(outcomeOK, res.GasUsed)

	return res
}

// PauseContract moves an active contract to paused. It returns false when
// the contract does not exist or is not active.
func (m *Manager) PauseContract(id string) bool {
	c, ok := m.Get(id)
	if !ok || c.State != contract.Active {
		return false
	}

	m.setState(c, contract.Paused)

	return true
}

// ResumeContract moves a paused contract back to active. Resuming is only
// allowed from the paused state.
func (m *Manager) ResumeContract(id string) bool {
	c, ok := m.Get(id)
	if !ok || c.State != contract.Paused {
		return false
	}

	m.setState(c, contract.Active)

	return true
}

// TerminateContract terminates the contract. The transition is allowed from
// any non-terminal state and cannot be undone.
func (m *Manager) TerminateContract(id string) bool {
	c, ok := m.Get(id)
	if !ok || c.State == contract.Terminated {
		return false
	}

	m.setState(c, contract.Terminated)

	return true
}

func (m *Manager) setState(c *contract.SmartContract, state contract.State) {
	c.State = state
	c.UpdatedAt = time.Now().Unix()

	err := m.persistContract(c)
	if err != nil {
		m.logger.Err(err).Str("contract", c.ID).Msg("couldn't persist contract")
	}

	m.logger.Info().
		Str("contract", c.ID).
		Str("state", string(state)).
		Msg("contract state changed")
}

// GetContractEvents loads every persisted event of the contract, sorted by
// timestamp.
func (m *Manager) GetContractEvents(id string) ([]contract.Event, error) {
	pattern := filepath.Join(m.eventsDir(), fmt.Sprintf("event_%s_*.json", id))

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, xerrors.Errorf("couldn't list files: %v", err)
	}

	events := make([]contract.Event, 0, len(matches))

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("while reading '%s': %v", path, err)
		}

		event := contract.Event{}

		err = json.Unmarshal(data, &event)
		if err != nil {
			return nil, xerrors.Errorf("while parsing '%s': %v", path, err)
		}

		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	return events, nil
}

func (m *Manager) snapshot() (execution.ChainSnapshot, error) {
	return m.chain.Snapshot()
}

func (m *Manager) persistContract(c *contract.SmartContract) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return xerrors.Errorf("couldn't marshal contract: %v", err)
	}

	path := filepath.Join(m.contractsDir(), fmt.Sprintf("contract_%s.json", c.ID))

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return xerrors.Errorf("while writing '%s': %v", path, err)
	}

	return nil
}

func (m *Manager) persistEvent(event contract.Event) error {
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return xerrors.Errorf("couldn't marshal event: %v", err)
	}

	ts := event.Timestamp

	path := filepath.Join(m.eventsDir(),
		fmt.Sprintf("event_%s_%d.json", event.ContractID, ts))

	// Bump the timestamp suffix until the name is free, in case two events
	// of the same contract share a coarse clock tick.
	for {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			break
		}

		ts++
		path = filepath.Join(m.eventsDir(),
			fmt.Sprintf("event_%s_%d.json", event.ContractID, ts))
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return xerrors.Errorf("while writing '%s': %v", path, err)
	}

	return nil
}
