package server

import (
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewEchoServant returns a servant answering every method with the request payload
func NewEchoServant() IServant {
	return NewServant(common.EchoServantName, func(req *common.Message) ([]byte, error) {
		if req.Payload == nil {
			return []byte{}, nil
		}
		return req.Payload, nil
	})
}

// --------------------------------------------------------------------------
// KV servant
// --------------------------------------------------------------------------

type kvEntry struct {
	value    []byte
	expireAt time.Time // zero = never
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// KVStore is the in-memory store behind the kv servant. Expired keys are
// removed lazily on access.
type KVStore struct {
	data *xsync.MapOf[string, kvEntry]
	now  func() time.Time
}

// NewKVStore creates an empty store
func NewKVStore() *KVStore {
	return &KVStore{
		data: xsync.NewMapOf[string, kvEntry](),
		now:  time.Now,
	}
}

func (s *KVStore) Set(key string, value []byte, ttl time.Duration) {
	e := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data.Store(key, e)
}

func (s *KVStore) Get(key string) ([]byte, bool) {
	e, ok := s.data.Load(key)
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		s.data.Compute(key, func(cur kvEntry, loaded bool) (kvEntry, bool) {
			return cur, !loaded || cur.expired(s.now())
		})
		return nil, false
	}
	return e.value, true
}

func (s *KVStore) Delete(key string) bool {
	_, ok := s.Get(key)
	s.data.Delete(key)
	return ok
}

// Len returns the number of stored keys, expired keys included
func (s *KVStore) Len() int {
	return s.data.Size()
}

// NewKVServant exposes store as the kv servant (get, set, delete, has)
func NewKVServant(store *KVStore) IServant {
	return NewMethodServant(common.KVServantName, map[string]MethodFunc{
		common.KVMethodGet: TypedMethod(func(args common.KVArgs) (common.KVResult, error) {
			v, ok := store.Get(args.Key)
			return common.KVResult{Value: v, Ok: ok}, nil
		}),
		common.KVMethodSet: TypedMethod(func(args common.KVArgs) (common.KVResult, error) {
			store.Set(args.Key, args.Value, time.Duration(args.TTLMillis)*time.Millisecond)
			return common.KVResult{Ok: true}, nil
		}),
		common.KVMethodDel: TypedMethod(func(args common.KVArgs) (common.KVResult, error) {
			return common.KVResult{Ok: store.Delete(args.Key)}, nil
		}),
		common.KVMethodHas: TypedMethod(func(args common.KVArgs) (common.KVResult, error) {
			_, ok := store.Get(args.Key)
			return common.KVResult{Ok: ok}, nil
		}),
	})
}
