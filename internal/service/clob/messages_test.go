package clob

import (
	"testing"
	"time"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeSingleBookFrame(t *testing.T) {
	data := []byte(`{
		"event_type": "book",
		"asset_id": "tok1",
		"timestamp": "1748779200000",
		"bids": [{"price": "0.45", "size": "100"}, {"price": "0.44", "size": "50"}],
		"asks": [{"price": "0.55", "size": "80"}]
	}`)

	frames, err := decodeFrames(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}

	book, err := frames[0].toBook(now)
	if err != nil {
		t.Fatalf("toBook: %v", err)
	}
	if book.AssetID != "tok1" {
		t.Fatalf("asset = %s", book.AssetID)
	}
	if got := book.BestBid(); got != 0.45 {
		t.Fatalf("best bid = %f", got)
	}
	if got := book.BestAsk(); got != 0.55 {
		t.Fatalf("best ask = %f", got)
	}
	if got := book.Timestamp.UnixMilli(); got != 1748779200000 {
		t.Fatalf("timestamp = %d", got)
	}
}

func TestDecodeFrameArray(t *testing.T) {
	data := []byte(`[
		{"event_type": "book", "asset_id": "a", "bids": [], "asks": []},
		{"event_type": "last_trade_price", "asset_id": "b", "price": "0.62", "size": "150", "side": "BUY"}
	]`)

	frames, err := decodeFrames(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}

	trade, err := frames[1].toTrade(now)
	if err != nil {
		t.Fatalf("toTrade: %v", err)
	}
	if trade.Price != 0.62 || trade.Size != 150 || trade.Side != "BUY" {
		t.Fatalf("trade = %+v", trade)
	}
	if trade.Notional() != 0.62*150 {
		t.Fatalf("notional = %f", trade.Notional())
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := decodeFrames([]byte(`{"event_type": `)); err == nil {
		t.Fatal("expected error for truncated json")
	}
	if _, err := decodeFrames([]byte(`[{]`)); err == nil {
		t.Fatal("expected error for malformed array")
	}
}

func TestMissingTimestampFallsBackToNow(t *testing.T) {
	f := wireFrame{EventType: frameTrade, AssetID: "tok", Price: "0.5", Size: "10"}
	trade, err := f.toTrade(now)
	if err != nil {
		t.Fatalf("toTrade: %v", err)
	}
	if !trade.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want fallback %v", trade.Timestamp, now)
	}
}

func TestBadNumericFieldsRejected(t *testing.T) {
	f := wireFrame{EventType: frameTrade, AssetID: "tok", Price: "abc", Size: "10"}
	if _, err := f.toTrade(now); err == nil {
		t.Fatal("expected error for non-numeric price")
	}

	b := wireFrame{
		EventType: frameBook,
		AssetID:   "tok",
		Bids:      []wireLevel{{Price: "0.5", Size: ""}},
	}
	if _, err := b.toBook(now); err == nil {
		t.Fatal("expected error for empty level size")
	}
}

func TestFrameWithoutAssetRejected(t *testing.T) {
	f := wireFrame{EventType: frameBook}
	if _, err := f.toBook(now); err == nil {
		t.Fatal("expected error for missing asset_id")
	}
}
