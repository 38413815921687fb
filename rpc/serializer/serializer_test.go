package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/gridRPC/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	req := common.NewRequest("echo", "Say", []byte("hello"))
	req.CbID = 42

	resp := common.NewResponse(req, []byte("hello back"))
	resp.Tid = 7

	return []common.Message{
		// Signal only
		{Signal: common.SignalPing},

		// Request
		*req,

		// Response
		*resp,

		// Invalid response
		*common.NewInvalidResponse(req, "servant failed"),

		// Message with all fields filled
		{
			Signal:  common.ResponseSignal("kv", "Get"),
			CbID:    1<<63 + 5,
			Tid:     99,
			Servant: "kv",
			Method:  "Get",
			Err:     true,
			ErrMsg:  "test error message",
			Payload: []byte("test-payload"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsReusedMessage makes sure no field of a previous decode survives
func TestDeserializeResetsReusedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			full := testMessages()[4]
			small := common.Message{Signal: common.SignalPong, CbID: 3}

			fullData, err := serializer.Serialize(full)
			if err != nil {
				t.Fatal(err)
			}
			smallData, err := serializer.Serialize(small)
			if err != nil {
				t.Fatal(err)
			}

			var msg common.Message
			if err := serializer.Deserialize(fullData, &msg); err != nil {
				t.Fatal(err)
			}
			if err := serializer.Deserialize(smallData, &msg); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(small, msg) {
				t.Errorf("expected %+v, got %+v", small, msg)
			}
		})
	}
}

// TestMissingSignal tests that every serializer rejects messages without signal
func TestMissingSignal(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Message{CbID: 1})
			if err != nil {
				t.Fatal(err)
			}
			var msg common.Message
			if err := serializer.Deserialize(data, &msg); err == nil {
				t.Errorf("expected error for message without signal")
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Signal only",
			msg:  common.Message{Signal: "x"},
		},
		{
			name: "Error flag without message",
			msg:  common.Message{Signal: common.SignalInvalidResponse, Err: true},
		},
		{
			name: "Empty payload but not nil",
			msg:  common.Message{Signal: "x", Payload: []byte{}},
		},
		{
			name: "Large payload",
			msg:  common.Message{Signal: "x", Payload: bytes.Repeat([]byte{0xAB}, 64*1024)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// nil and empty payloads must stay distinguishable
			if (tc.msg.Payload == nil) != (result.Payload == nil) {
				t.Errorf("Payload nil/non-nil mismatch: expected %v, got %v", tc.msg.Payload, result.Payload)
			}
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("expected %+v, got %+v", tc.msg, result)
			}
		})
	}
}

// TestBinaryPayloadIsCopied tests that the decoded payload does not alias the input buffer
func TestBinaryPayloadIsCopied(t *testing.T) {
	serializer := NewBinarySerializer()
	data, err := serializer.Serialize(common.Message{Signal: "x", Payload: []byte("abc")})
	if err != nil {
		t.Fatal(err)
	}

	var msg common.Message
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatal(err)
	}
	for i := range data {
		data[i] = 0
	}
	if string(msg.Payload) != "abc" {
		t.Errorf("payload changed with the input buffer: %q", msg.Payload)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{0, 0, 0},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{0, 0, 0, 0, 1, 'x'},
			expectError: false,
		},
		{
			name:        "Empty signal",
			data:        []byte{0, 0, 0, 0, 0},
			expectError: true,
		},
		{
			name:        "Invalid length for signal",
			data:        []byte{0, 0, 0, 0, 5, 'a', 'b', 'c'},
			expectError: true,
		},
		{
			name:        "Missing cbId",
			data:        []byte{hasCbID, 0, 0, 0, 1, 'x', 0, 0},
			expectError: true,
		},
		{
			name:        "Invalid length for payload",
			data:        []byte{hasPayload, 0, 0, 0, 1, 'x', 0, 0, 0, 10},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("unexpected error for %s: %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("expected error for unknown serializer")
	}
}
