package grpcserver

import (
	"context"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"matchcore/domain/orderbook"
	"matchcore/service"
)

// OutboxErrorTrailer carries the outbox failure of a placed order.
const OutboxErrorTrailer = "matchcore-outbox-error"

// Server adapts OrderService to gRPC.
type Server struct {
	svc *service.OrderService
	log *zap.Logger
}

var _ OrderServiceServer = (*Server)(nil)

func NewServer(svc *service.OrderService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// -------------------- Commands --------------------

// PlaceOrder expects {side: "BUY"|"SELL", price: "<decimal>", quantity: n}.
//
// PlaceOrder is not idempotent. When the order was placed but its trade
// events could not be stored for publishing, the call still succeeds with
// the placement and sets the trailer OutboxErrorTrailer; clients must not
// retry it.
func (s *Server) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()

	side, err := toSide(f["side"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	price, err := toPrice(f["price"])
	if err != nil {
		return nil, toStatus(err)
	}
	qty, err := toInt(f["quantity"], "quantity")
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.svc.PlaceOrder(ctx, side, price, qty)
	if errors.Is(err, service.ErrOutboxWrite) {
		// placed and traded, events lost
		s.log.Error("[gRPC] PlaceOrder outbox write", zap.Uint64("seq", res.Seq), zap.Error(err))
		if terr := grpc.SetTrailer(ctx, metadata.Pairs(OutboxErrorTrailer, err.Error())); terr != nil {
			s.log.Warn("[gRPC] set trailer", zap.Error(terr))
		}
	} else if err != nil {
		return nil, toStatus(err)
	}

	trades := make([]any, 0, len(res.Trades))
	for _, tr := range res.Trades {
		trades = append(trades, fromTrade(tr))
	}
	return structpb.NewStruct(map[string]any{
		"seq":    float64(res.Seq),
		"order":  fromOrder(res.Order),
		"trades": trades,
	})
}

// -------------------- Queries --------------------

func (s *Server) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := toInt(req.GetFields()["id"], "id")
	if err != nil {
		return nil, toStatus(err)
	}
	if id < 0 || id > math.MaxUint32 {
		return nil, toStatus(errors.Wrapf(orderbook.ErrOrderNotFound, "order %d", id))
	}
	o, err := s.svc.GetOrder(orderbook.OrderID(id))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"order": fromOrder(o)})
}

func (s *Server) TopOfBook(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	top := s.svc.TopOfBook()
	return structpb.NewStruct(map[string]any{
		"best_bid": fromNullPrice(top.BestBid),
		"best_ask": fromNullPrice(top.BestAsk),
	})
}

// Depth expects {limit: n}; a missing or zero limit returns every level.
func (s *Server) Depth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int64(0)
	if v, ok := req.GetFields()["limit"]; ok {
		var err error
		if limit, err = toInt(v, "limit"); err != nil {
			return nil, toStatus(err)
		}
	}
	d := s.svc.Depth(int(limit))
	return structpb.NewStruct(map[string]any{
		"bids": fromLevels(d.Bids),
		"asks": fromLevels(d.Asks),
	})
}

// -------------------- Converters --------------------

func toSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY", "BID":
		return orderbook.Buy, nil
	case "SELL", "ASK":
		return orderbook.Sell, nil
	default:
		return 0, errors.Wrapf(orderbook.ErrInvalidArgument, "side %q", s)
	}
}

// toPrice accepts a decimal string. Numbers are refused since they travel as
// binary floats.
func toPrice(v *structpb.Value) (decimal.Decimal, error) {
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return decimal.Decimal{}, errors.Wrap(orderbook.ErrInvalidArgument, "price must be a decimal string")
	}
	p, err := decimal.NewFromString(sv.StringValue)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(orderbook.ErrInvalidArgument, "price %q", sv.StringValue)
	}
	return p, nil
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

func toInt(v *structpb.Value, name string) (int64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, errors.Wrapf(orderbook.ErrInvalidArgument, "%s %v is not an integer", name, n)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil || !d.IsInteger() {
			return 0, errors.Wrapf(orderbook.ErrInvalidArgument, "%s %q is not an integer", name, k.StringValue)
		}
		if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
			return 0, errors.Wrapf(orderbook.ErrInvalidArgument, "%s %q out of range", name, k.StringValue)
		}
		return d.IntPart(), nil
	default:
		return 0, errors.Wrapf(orderbook.ErrInvalidArgument, "%s missing", name)
	}
}

func fromOrder(o orderbook.Order) map[string]any {
	return map[string]any{
		"id":        float64(o.ID),
		"side":      o.Side.String(),
		"price":     o.Price.String(),
		"quantity":  float64(o.Quantity),
		"remaining": float64(o.Remaining),
		"filled":    float64(o.Filled()),
		"seq":       float64(o.Seq),
	}
}

func fromTrade(tr orderbook.Trade) map[string]any {
	return map[string]any{
		"price":      tr.Price.String(),
		"quantity":   float64(tr.Quantity),
		"taker_id":   float64(tr.TakerID),
		"maker_id":   float64(tr.MakerID),
		"taker_side": tr.TakerSide.String(),
	}
}

func fromNullPrice(p decimal.NullDecimal) any {
	if !p.Valid {
		return nil
	}
	return p.Decimal.String()
}

func fromLevels(levels []orderbook.LevelView) []any {
	out := make([]any, 0, len(levels))
	for _, l := range levels {
		out = append(out, map[string]any{
			"price":    l.Price.String(),
			"quantity": float64(l.Quantity),
			"orders":   float64(l.Orders),
		})
	}
	return out
}
