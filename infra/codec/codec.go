package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

type Codec interface {
	Name() string
	Encode(*TradeEvent) ([]byte, error)
	Decode([]byte) (*TradeEvent, error)
}

var ErrUnknownCodec = errors.New("unknown codec")

// ByName returns "json" or "proto".
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "proto", "protobuf":
		return Proto{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}

// ---------- JSON ----------

type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(ev *TradeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func (JSON) Decode(b []byte) (*TradeEvent, error) {
	var ev TradeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, errors.Wrap(err, "decode json trade event")
	}
	return &ev, nil
}
