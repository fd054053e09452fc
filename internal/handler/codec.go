package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
	"github.com/tifstore/topup-orders/internal/domain/order"
	"github.com/tifstore/topup-orders/internal/domain/pricing"
)

// decodeCreateOrder parses the POST /api/orders body. Unknown fields are
// ignored. The owner is not read from the body.
func decodeCreateOrder(data []byte) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	if len(data) == 0 {
		return req, errors.New("empty request body")
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Str()
		case "userId":
			req.GameUserID, err = decodeID(d)
		case "serverId":
			req.ServerID, err = decodeID(d)
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		case "email":
			req.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return req, errors.Wrap(err, "decode request")
	}
	return req, nil
}

// decodeID accepts in-game ids sent either as strings or as numbers.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		if !n.IsInt() {
			return "", errors.New("must be an integer")
		}
		return n.String(), nil
	default:
		return d.Str()
	}
}

func decodeStatusUpdate(data []byte) (order.Status, error) {
	var status string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode request")
	}
	if status == "" {
		return "", errors.New("status is required")
	}
	return order.Status(status), nil
}

func encodeOrder(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	if o.Email != "" {
		e.FieldStart("email")
		e.Str(o.Email)
	}
	e.FieldStart("totalAmount")
	e.Int64(o.TotalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("price")
		e.Int64(it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("gameData")
		e.ObjStart()
		e.FieldStart("userId")
		e.Str(it.GameData.UserID)
		if it.GameData.ServerID != "" {
			e.FieldStart("serverId")
			e.Str(it.GameData.ServerID)
		}
		e.FieldStart("gameName")
		e.Str(it.GameData.GameName)
		e.FieldStart("productName")
		e.Str(it.GameData.ProductName)
		e.ObjEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeQuote(p *catalog.Product, q pricing.Quote) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(p.ID)
	e.FieldStart("productName")
	e.Str(p.Name)
	e.FieldStart("listPrice")
	e.Int64(q.ListPrice)
	e.FieldStart("price")
	e.Int64(q.Charged)
	e.FieldStart("discount")
	e.Int64(q.Discount())
	e.FieldStart("promo")
	if res := q.Promo; res.Found() {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(res.Promo.ID)
		e.FieldStart("name")
		e.Str(res.Promo.Name)
		e.FieldStart("discount")
		e.Str(res.Promo.Discount)
		e.FieldStart("tier")
		e.Str(res.Tier.String())
		e.ObjEnd()
	} else {
		e.Null()
	}
	e.ObjEnd()
	return e.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.FieldStart("error")
	e.Str(code)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
