package console

import (
	"context"
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/shopspring/decimal"
	"io"
	"strings"
	"time"
)

const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// nanotons per TON as a power of ten
const tonExponent = -9

// Printer writes new transactions in a human-readable layout.
type Printer struct {
	w        io.Writer
	location *time.Location
}

func NewPrinter(w io.Writer, location *time.Location) *Printer {
	if location == nil {
		location = time.Local
	}
	return &Printer{
		w:        w,
		location: location,
	}
}

func (p *Printer) Deliver(_ context.Context, tx entities.Tx) error {
	_, err := io.WriteString(p.w, "🚨 NEW TRANSACTION DETECTED!\n"+p.Format(tx))
	if err != nil {
		return fmt.Errorf("printing transaction [%s]: %w", tx.Hash, err)
	}
	return nil
}

func (p *Printer) Format(tx entities.Tx) string {
	var sb strings.Builder

	sb.WriteString("\n" + separator + "\n")
	fmt.Fprintf(&sb, "📅 Time: %s\n", time.Unix(tx.Timestamp, 0).In(p.location).Format(time.DateTime))
	fmt.Fprintf(&sb, "🔗 Hash: %s\n", tx.Hash)
	fmt.Fprintf(&sb, "📊 LT: %d\n", tx.LT)
	fmt.Fprintf(&sb, "💰 Fees: %s TON\n", toTon(tx.Fee))

	if tx.In != nil && tx.In.Value.IsPositive() {
		fmt.Fprintf(&sb, "📥 INCOMING: %s TON from %s\n", toTon(tx.In.Value), orNA(tx.In.Address))
	}

	if len(tx.Out) > 0 {
		sb.WriteString("📤 OUTGOING:\n")
		for _, out := range tx.Out {
			fmt.Fprintf(&sb, "  → %s: %s TON\n", orNA(out.Address), toTon(out.Value))
		}
	}

	return sb.String()
}

func toTon(nanotons decimal.Decimal) string {
	return nanotons.Shift(tonExponent).StringFixed(6)
}

func orNA(address string) string {
	if address == "" {
		return "N/A"
	}
	return address
}
