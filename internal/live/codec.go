package live

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same update always
// produces identical bytes on the wire.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("live: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("live: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeUpdate(u Update) ([]byte, error) {
	return encMode.Marshal(u)
}

func decodeUpdate(data []byte) (Update, error) {
	var u Update
	err := decMode.Unmarshal(data, &u)
	return u, err
}
