package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/domain/repositories"
	chain "github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockLedgerRepository is an in-memory LedgerRepository enforcing the
// ledger's dedup key
type MockLedgerRepository struct {
	mu      sync.RWMutex
	entries []entities.LedgerEntry
	keys    map[entities.LedgerKey]bool
	nextID  int64

	// Function hooks for custom behavior
	InsertIfAbsentFunc func(ctx context.Context, entry *entities.LedgerEntry) (bool, error)
	GetCursorFunc      func(ctx context.Context, treasuryID string) (entities.SyncCursor, error)
	GetByFilterFunc    func(ctx context.Context, filter entities.LedgerFilter) ([]entities.LedgerEntry, error)
	GetCountFunc       func(ctx context.Context, filter entities.LedgerFilter) (int64, error)

	// Call tracking
	Calls []MockCall
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		keys:  make(map[entities.LedgerKey]bool),
		Calls: make([]MockCall, 0),
	}
}

func (m *MockLedgerRepository) track(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockLedgerRepository) InsertIfAbsent(ctx context.Context, entry *entities.LedgerEntry) (bool, error) {
	m.track("InsertIfAbsent", *entry)

	if m.InsertIfAbsentFunc != nil {
		return m.InsertIfAbsentFunc(ctx, entry)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[entry.Key()] {
		return false, nil
	}
	m.nextID++
	entry.ID = m.nextID
	entry.CreatedAt = time.Now()
	m.keys[entry.Key()] = true
	m.entries = append(m.entries, *entry)
	return true, nil
}

func (m *MockLedgerRepository) GetCursor(ctx context.Context, treasuryID string) (entities.SyncCursor, error) {
	m.track("GetCursor", treasuryID)

	if m.GetCursorFunc != nil {
		return m.GetCursorFunc(ctx, treasuryID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cursor := entities.SyncCursor{TreasuryID: treasuryID}
	for _, e := range m.entries {
		if e.TreasuryID != treasuryID {
			continue
		}
		if cursor.LastRecordedBlock == nil || e.BlockNumber > *cursor.LastRecordedBlock {
			block := e.BlockNumber
			cursor.LastRecordedBlock = &block
		}
	}
	return cursor, nil
}

func (m *MockLedgerRepository) matching(filter entities.LedgerFilter) []entities.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.LedgerEntry, 0)
	for _, e := range m.entries {
		if e.TreasuryID != filter.TreasuryID {
			continue
		}
		if filter.EventType != nil && e.EventType != *filter.EventType {
			continue
		}
		result = append(result, e)
	}

	// Newest first
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber > result[j].BlockNumber
		}
		return result[i].LogIndex > result[j].LogIndex
	})
	return result
}

func (m *MockLedgerRepository) GetByFilter(ctx context.Context, filter entities.LedgerFilter) ([]entities.LedgerEntry, error) {
	m.track("GetByFilter", filter)

	if m.GetByFilterFunc != nil {
		return m.GetByFilterFunc(ctx, filter)
	}

	result := m.matching(filter)

	// Apply pagination
	start := filter.Offset
	if start > len(result) {
		return []entities.LedgerEntry{}, nil
	}
	end := start + filter.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (m *MockLedgerRepository) GetCount(ctx context.Context, filter entities.LedgerFilter) (int64, error) {
	m.track("GetCount", filter)

	if m.GetCountFunc != nil {
		return m.GetCountFunc(ctx, filter)
	}
	return int64(len(m.matching(filter))), nil
}

// AddEntries seeds the ledger, bypassing dedup
func (m *MockLedgerRepository) AddEntries(entries ...entities.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.keys[e.Key()] = true
		m.entries = append(m.entries, e)
	}
}

// Entries returns a copy of the stored entries in insertion order
func (m *MockLedgerRepository) Entries() []entities.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// DeleteTreasury mimics the ON DELETE CASCADE from treasuries
func (m *MockLedgerRepository) DeleteTreasury(treasuryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.TreasuryID == treasuryID {
			delete(m.keys, e.Key())
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
}

func (m *MockLedgerRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockTreasuryRepository is an in-memory TreasuryRepository
type MockTreasuryRepository struct {
	mu         sync.RWMutex
	treasuries map[string]*entities.Treasury
	order      []string

	// Ledger, when set, loses a deleted treasury's entries
	Ledger *MockLedgerRepository

	// Function hooks for custom behavior
	GetByIDFunc      func(ctx context.Context, id string) (*entities.Treasury, error)
	ListFunc         func(ctx context.Context, filter entities.TreasuryFilter) ([]entities.Treasury, error)
	UpsertFunc       func(ctx context.Context, treasury *entities.Treasury) error
	DeleteOwnedFunc  func(ctx context.Context, ownerAddress string, chainID int64, ids []string) ([]string, error)
	GetByAddressFunc func(ctx context.Context, chainID int64, address string) (*entities.Treasury, error)

	// Call tracking
	Calls []MockCall
}

func NewMockTreasuryRepository() *MockTreasuryRepository {
	return &MockTreasuryRepository{
		treasuries: make(map[string]*entities.Treasury),
		Calls:      make([]MockCall, 0),
	}
}

func (m *MockTreasuryRepository) track(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockTreasuryRepository) GetByID(ctx context.Context, id string) (*entities.Treasury, error) {
	m.track("GetByID", id)

	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.treasuries[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (m *MockTreasuryRepository) GetByAddress(ctx context.Context, chainID int64, address string) (*entities.Treasury, error) {
	m.track("GetByAddress", chainID, address)

	if m.GetByAddressFunc != nil {
		return m.GetByAddressFunc(ctx, chainID, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.treasuries {
		if t.ChainID == chainID && t.Address == strings.ToLower(address) {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockTreasuryRepository) List(ctx context.Context, filter entities.TreasuryFilter) ([]entities.Treasury, error) {
	m.track("List", filter)

	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]entities.Treasury, 0)
	for _, id := range m.order {
		t := m.treasuries[id]
		if filter.OwnerAddress != nil && t.OwnerAddress != strings.ToLower(*filter.OwnerAddress) {
			continue
		}
		if filter.ChainID != nil && t.ChainID != *filter.ChainID {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

func (m *MockTreasuryRepository) Upsert(ctx context.Context, treasury *entities.Treasury) error {
	m.track("Upsert", *treasury)

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, treasury)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, t := range m.treasuries {
		if t.ChainID == treasury.ChainID && strings.EqualFold(t.Address, treasury.Address) {
			if !strings.EqualFold(t.OwnerAddress, treasury.OwnerAddress) {
				return repositories.ErrOwnerConflict
			}
			treasury.ID = t.ID
			treasury.CreatedAt = t.CreatedAt
			treasury.UpdatedAt = now
			copied := *treasury
			m.treasuries[t.ID] = &copied
			return nil
		}
	}

	if treasury.ID == "" {
		treasury.ID = uuid.NewString()
	}
	treasury.CreatedAt = now
	treasury.UpdatedAt = now
	copied := *treasury
	m.treasuries[treasury.ID] = &copied
	m.order = append(m.order, treasury.ID)
	return nil
}

func (m *MockTreasuryRepository) DeleteOwned(ctx context.Context, ownerAddress string, chainID int64, ids []string) ([]string, error) {
	m.track("DeleteOwned", ownerAddress, chainID, ids)

	if m.DeleteOwnedFunc != nil {
		return m.DeleteOwnedFunc(ctx, ownerAddress, chainID, ids)
	}

	m.mu.Lock()
	var deleted []string
	for _, id := range ids {
		t, ok := m.treasuries[id]
		if !ok || t.OwnerAddress != strings.ToLower(ownerAddress) || t.ChainID != chainID {
			continue
		}
		delete(m.treasuries, id)
		deleted = append(deleted, id)
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.treasuries[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	m.mu.Unlock()

	if m.Ledger != nil {
		for _, id := range deleted {
			m.Ledger.DeleteTreasury(id)
		}
	}
	return deleted, nil
}

// AddTreasuries seeds the repository
func (m *MockTreasuryRepository) AddTreasuries(treasuries ...*entities.Treasury) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range treasuries {
		copied := *t
		if _, ok := m.treasuries[t.ID]; !ok {
			m.order = append(m.order, t.ID)
		}
		m.treasuries[t.ID] = &copied
	}
}

func (m *MockTreasuryRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockChain is an in-memory node answering the Reader and CodeReader
// surfaces. GetLogs applies address, topic and block-range filtering.
type MockChain struct {
	mu sync.Mutex

	NetworkID     int64
	Head          uint64
	HeadErr       error
	Logs          []types.Log
	LogsErr       error
	Timestamps    map[uint64]time.Time
	TimestampErrs map[uint64]error
	Code          map[common.Address][]byte
	CodeErrs      map[common.Address]error

	Queries        []ethereum.FilterQuery
	TimestampCalls map[uint64]int
	CodeCalls      int
}

var (
	_ chain.Reader     = (*MockChain)(nil)
	_ chain.CodeReader = (*MockChain)(nil)
)

func NewMockChain(head uint64) *MockChain {
	return &MockChain{
		NetworkID:      TestChainID,
		Head:           head,
		Timestamps:     make(map[uint64]time.Time),
		TimestampErrs:  make(map[uint64]error),
		Code:           make(map[common.Address][]byte),
		CodeErrs:       make(map[common.Address]error),
		TimestampCalls: make(map[uint64]int),
	}
}

func (m *MockChain) HeadBlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Head, m.HeadErr
}

func (m *MockChain) ChainID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NetworkID
}

func (m *MockChain) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, q)
	if m.LogsErr != nil {
		return nil, m.LogsErr
	}

	var out []types.Log
	for _, l := range m.Logs {
		if matchesQuery(l, q) {
			out = append(out, l)
		}
	}
	return out, nil
}

func matchesQuery(l types.Log, q ethereum.FilterQuery) bool {
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
		return false
	}
	for i, want := range q.Topics {
		if len(want) == 0 {
			continue
		}
		if i >= len(l.Topics) || !containsHash(want, l.Topics[i]) {
			return false
		}
	}
	return true
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

func (m *MockChain) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TimestampCalls[blockNumber]++
	if err, ok := m.TimestampErrs[blockNumber]; ok {
		return time.Time{}, err
	}
	if ts, ok := m.Timestamps[blockNumber]; ok {
		return ts, nil
	}
	return BlockTime(blockNumber), nil
}

func (m *MockChain) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CodeCalls++
	if err, ok := m.CodeErrs[address]; ok {
		return nil, err
	}
	return m.Code[address], nil
}

// AddLogs appends logs to the chain
func (m *MockChain) AddLogs(logs ...types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, logs...)
}

// SetHead moves the chain head
func (m *MockChain) SetHead(head uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Head = head
}

// MockReaderProvider hands out a fixed Reader and records which endpoints
// were opened
type MockReaderProvider struct {
	mu sync.Mutex

	Reader      chain.Reader
	AllowedURLs []string
	OpenErr     error

	Opened       []string
	OpenedChains []int64
	Released     int
}

func NewMockReaderProvider(reader chain.Reader, allowed ...string) *MockReaderProvider {
	return &MockReaderProvider{Reader: reader, AllowedURLs: allowed}
}

func (m *MockReaderProvider) Allowed(rpcURL string) bool {
	for _, u := range m.AllowedURLs {
		if u == rpcURL {
			return true
		}
	}
	return false
}

func (m *MockReaderProvider) Open(ctx context.Context, rpcURL string, chainID int64) (chain.Reader, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Opened = append(m.Opened, rpcURL)
	m.OpenedChains = append(m.OpenedChains, chainID)
	if m.OpenErr != nil {
		return nil, nil, m.OpenErr
	}
	return m.Reader, func() {
		m.mu.Lock()
		m.Released++
		m.mu.Unlock()
	}, nil
}

// ErrMockCacheMiss is returned by MockPageCache.Get for absent keys
var ErrMockCacheMiss = errors.New("cache miss")

// MockPageCache is an in-memory JSON cache with glob invalidation
type MockPageCache struct {
	mu   sync.Mutex
	data map[string][]byte

	SetErr          error
	DeletedPatterns []string
	Hits            int
}

func NewMockPageCache() *MockPageCache {
	return &MockPageCache{data: make(map[string][]byte)}
}

func (m *MockPageCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return ErrMockCacheMiss
	}
	m.Hits++
	return json.Unmarshal(raw, dest)
}

func (m *MockPageCache) Set(ctx context.Context, key string, value interface{}) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *MockPageCache) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedPatterns = append(m.DeletedPatterns, pattern)
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
		}
	}
	return nil
}

// Len returns the number of cached keys
func (m *MockPageCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// MockMetadataReader returns fixed token metadata
type MockMetadataReader struct {
	Symbol   *string
	Decimals *int
	Calls    int
}

func (m *MockMetadataReader) Read(ctx context.Context, token common.Address) (*string, *int) {
	m.Calls++
	return m.Symbol, m.Decimals
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mu      sync.RWMutex
	healthy bool
	err     error
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{healthy: healthy}
	if !healthy {
		m.err = errors.New("service unhealthy")
	}
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.healthy {
		return nil
	}
	return m.err
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	if !healthy {
		m.err = errors.New("service unhealthy")
	} else {
		m.err = nil
	}
}
