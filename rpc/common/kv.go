package common

// --------------------------------------------------------------------------
// Built-in servant payloads
// --------------------------------------------------------------------------

// Names of the built-in servants and their methods
const (
	EchoServantName = "echo"
	EchoMethod      = "echo"

	KVServantName = "kv"
	KVMethodGet   = "get"
	KVMethodSet   = "set"
	KVMethodDel   = "delete"
	KVMethodHas   = "has"
)

// KVArgs is the payload of a kv call. Value is only used by set, TTLMillis = 0
// means the key never expires.
type KVArgs struct {
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	TTLMillis int64  `json:"ttlMillis,omitempty"`
}

// KVResult is the result of a kv call. Ok reports whether the key was present
// (get, has, delete) or written (set).
type KVResult struct {
	Value []byte `json:"value,omitempty"`
	Ok    bool   `json:"ok"`
}
