// Package file loads catalog snapshots from JSON documents on disk. Files
// ending in .gz are decompressed transparently.
package file

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"

	"github.com/tifstore/topup-orders/internal/domain/catalog"
)

var _ catalog.Loader = (*CatalogLoader)(nil)

// CatalogLoader reads a catalog document from Path on each LoadSnapshot.
type CatalogLoader struct {
	Path string
}

// NewCatalogLoader returns a loader for the document at path.
func NewCatalogLoader(path string) *CatalogLoader {
	return &CatalogLoader{Path: path}
}

// LoadSnapshot implements catalog.Loader.
func (l *CatalogLoader) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(l.Path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", l.Path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	games, global, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", l.Path)
	}
	return catalog.NewSnapshot(games, global), nil
}

// Decode parses a catalog document of the form
//
//	{"games": [...], "globalPromos": [...]}
//
// where each game carries its products and owned promos inline.
func Decode(r io.Reader) (games []catalog.Game, global []catalog.Promo, err error) {
	d := jx.Decode(r, 4096)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "games":
			return d.Arr(func(d *jx.Decoder) error {
				g, err := decodeGame(d)
				if err != nil {
					return err
				}
				games = append(games, g)
				return nil
			})
		case "globalPromos":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodePromo(d)
				if err != nil {
					return err
				}
				global = append(global, p)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return games, global, nil
}

func decodeGame(d *jx.Decoder) (catalog.Game, error) {
	var g catalog.Game
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			g.ID, err = d.Str()
		case "name":
			g.Name, err = d.Str()
		case "categories":
			g.Categories, err = decodeStrings(d)
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				g.Products = append(g.Products, p)
				return nil
			})
		case "promos":
			err = d.Arr(func(d *jx.Decoder) error {
				p, err := decodePromo(d)
				if err != nil {
					return err
				}
				g.Promos = append(g.Promos, p)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "game field %q", key)
		}
		return nil
	})
	return g, err
}

func decodeProduct(d *jx.Decoder) (catalog.Product, error) {
	var p catalog.Product
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = d.Int64()
		case "originalPrice":
			p.OriginalPrice, err = d.Int64()
		case "discount":
			p.Discount, err = d.Str()
		case "tags":
			p.Tags, err = decodeStrings(d)
		case "category":
			p.Category, err = d.Str()
		case "gameId":
			p.GameID, err = d.Str()
		case "duration":
			p.Duration, err = d.Str()
		case "benefits":
			p.Benefits, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "product field %q", key)
		}
		return nil
	})
	return p, err
}

func decodePromo(d *jx.Decoder) (catalog.Promo, error) {
	var p catalog.Promo
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "discount":
			p.Discount, err = d.Str()
		case "startDate":
			p.StartDate, err = decodeTime(d)
		case "endDate":
			p.EndDate, err = decodeTime(d)
		case "gameId":
			p.GameID, err = d.Str()
		case "applicableProducts":
			p.ApplicableProducts, err = decodeStrings(d)
		case "applicableGames":
			p.ApplicableGames, err = decodeStrings(d)
		case "applicableCategories":
			p.ApplicableCategories, err = decodeStrings(d)
		case "paymentMethod":
			p.PaymentMethod, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "promo field %q", key)
		}
		return nil
	})
	return p, err
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
