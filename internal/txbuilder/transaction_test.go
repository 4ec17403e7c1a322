package txbuilder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestUnsignedTransactionRoundTrip(t *testing.T) {
	tx := &UnsignedTransaction{
		Inputs:          []Input{{TxID: "aa", Vout: 1, ValueSats: 30_000, Address: "bc1qwallet"}},
		Outputs:         []Output{{Address: "bc1qdest", ValueSats: 25_000}, {Address: "bc1qchange", ValueSats: 4_600, Change: true}},
		FeeSats:         400,
		FeeRateSatPerVB: decimal.RequireFromString("1.74"),
		VSizeVB:         226,
		Note:            "supplier invoice",
		CreatedAt:       time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}

	data, err := tx.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TotalInputSats() != 30_000 || decoded.TotalOutputSats() != 29_600 {
		t.Fatalf("totals lost in round trip: %+v", decoded)
	}
	if !decoded.FeeRateSatPerVB.Equal(tx.FeeRateSatPerVB) {
		t.Fatalf("fee rate lost in round trip: %s", decoded.FeeRateSatPerVB)
	}
	if !decoded.Outputs[1].Change {
		t.Fatal("change marker lost in round trip")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	if _, err := Decode([]byte(`{"inputs":[],"outputs":[],"fee_sats":0,"private_key":"oops"}`)); err == nil {
		t.Fatal("artifacts with unknown fields must not decode")
	}
}

func TestEstimateVSize(t *testing.T) {
	if got := estimateVSize(2, 2); got != 374 {
		t.Fatalf("2-in/2-out vsize should be 374, got %d", got)
	}
	if got := estimateVSize(1, 1); got != 192 {
		t.Fatalf("1-in/1-out vsize should be 192, got %d", got)
	}
}
