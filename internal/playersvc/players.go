// Package playersvc assigns player slots to connections and owns the
// per-player feedback intent (LED pattern, rumble) that drivers reflect
// onto the hardware. Slot assignments are persisted so a controller
// reconnects into the player slot it had before.
package playersvc

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"

	"github.com/chaosweilder/wiibridge/internal/drivers"
)

const MaxPlayers = 4

// One LED per player, bits 4-7 of the raw pattern byte.
var defaultLEDPatterns = [MaxPlayers]byte{0x10, 0x20, 0x40, 0x80}

const dbKeyPrefix = "player/"

type playerSlot struct {
	used bool
	key  drivers.ConnKey
	fb   drivers.Feedback
}

type Service struct {
	log *zap.Logger
	db  *badger.DB

	mu      sync.Mutex
	players [MaxPlayers]playerSlot
}

func New(db *badger.DB, log *zap.Logger) *Service {
	return &Service{
		log: log,
		db:  db,
	}
}

// Attach assigns a player index to a connection, preferring the index this
// address held last time. The initial feedback intent is the player's
// default LED pattern with rumble off.
func (s *Service) Attach(key drivers.ConnKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	if prev, ok := s.loadAssignment(key.Addr); ok && !s.players[prev].used {
		idx = prev
	} else {
		for i := range s.players {
			if !s.players[i].used {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return -1, fmt.Errorf("no free player slot for %s", key)
	}

	s.players[idx] = playerSlot{
		used: true,
		key:  key,
		fb: drivers.Feedback{
			LEDPattern: defaultLEDPatterns[idx],
		},
	}
	s.storeAssignment(key.Addr, idx)
	s.log.Info("player attached", zap.Stringer("key", key), zap.Int("player", idx))
	return idx, nil
}

// Detach frees the player slot held by the connection, if any.
func (s *Service) Detach(key drivers.ConnKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.players {
		if s.players[i].used && s.players[i].key == key {
			s.players[i] = playerSlot{}
			s.log.Info("player detached", zap.Stringer("key", key), zap.Int("player", i))
			return
		}
	}
}

// FindPlayerIndex implements drivers.Players.
func (s *Service) FindPlayerIndex(key drivers.ConnKey) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.players {
		if s.players[i].used && s.players[i].key == key {
			return i, true
		}
	}
	return -1, false
}

// FeedbackState implements drivers.Players.
func (s *Service) FeedbackState(index int) drivers.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= MaxPlayers {
		return drivers.Feedback{}
	}
	return s.players[index].fb
}

// ClearDirty implements drivers.Players.
func (s *Service) ClearDirty(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= MaxPlayers {
		return
	}
	s.players[index].fb.LEDDirty = false
	s.players[index].fb.RumbleDirty = false
}

// DefaultLEDPattern implements drivers.Players.
func (s *Service) DefaultLEDPattern(index int) byte {
	if index < 0 || index >= MaxPlayers {
		index = 0
	}
	return defaultLEDPatterns[index]
}

// SetLEDPattern updates the LED intent for a player. The owning driver
// picks the change up on its next tick.
func (s *Service) SetLEDPattern(index int, pattern byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= MaxPlayers {
		return
	}
	s.players[index].fb.LEDPattern = pattern
	s.players[index].fb.LEDDirty = true
}

// SetRumble updates the rumble intent for a player.
func (s *Service) SetRumble(index int, left, right uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= MaxPlayers {
		return
	}
	s.players[index].fb.RumbleLeft = left
	s.players[index].fb.RumbleRight = right
	s.players[index].fb.RumbleDirty = true
}

// PlayerInfo is a snapshot row for the CLI.
type PlayerInfo struct {
	Index int    `json:"index"`
	Addr  string `json:"addr"`
	Used  bool   `json:"used"`
}

func (s *Service) List() []PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayerInfo, 0, MaxPlayers)
	for i := range s.players {
		info := PlayerInfo{Index: i, Used: s.players[i].used}
		if s.players[i].used {
			info.Addr = s.players[i].key.Addr
		}
		out = append(out, info)
	}
	return out
}

// StoredAssignments returns the persisted address to player index mapping.
func (s *Service) StoredAssignments() (map[string]int, error) {
	out := make(map[string]int)
	if s.db == nil {
		return out, nil
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(dbKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			addr := string(item.Key()[len(dbKeyPrefix):])
			err := item.Value(func(val []byte) error {
				if len(val) == 1 {
					out[addr] = int(val[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) loadAssignment(addr string) (int, bool) {
	if s.db == nil {
		return 0, false
	}
	var idx int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dbKeyPrefix + addr))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 || int(val[0]) >= MaxPlayers {
				return fmt.Errorf("corrupt player assignment for %s", addr)
			}
			idx = int(val[0])
			return nil
		})
	})
	if err != nil {
		return 0, false
	}
	return idx, true
}

func (s *Service) storeAssignment(addr string, idx int) {
	if s.db == nil {
		return
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dbKeyPrefix+addr), []byte{byte(idx)})
	})
	if err != nil {
		s.log.Warn("failed to persist player assignment",
			zap.String("addr", addr), zap.Error(err))
	}
}
