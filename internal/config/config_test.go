package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.TWAPWindow != 30*time.Minute {
		t.Fatalf("twap window = %s, want 30m", cfg.TWAPWindow)
	}
	if cfg.MinLiquidity != 1000 || cfg.BaseFeeBps != 100 || cfg.LPFeeBps != 50 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("pair", "", "")
	flags.Uint32("base-fee-bps", 100, "")
	if err := flags.Parse([]string{
		"--rpc=https://rpc.example", "--pair=0xA:0xB, 0xC:0xD", "--base-fee-bps=200",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "https://rpc.example" {
		t.Fatalf("rpc = %q", cfg.RPCURL)
	}
	if cfg.BaseFeeBps != 200 {
		t.Fatalf("base fee = %d, want 200", cfg.BaseFeeBps)
	}
	if len(cfg.Pairs) != 2 || cfg.Pairs[0] != "0xA:0xB" || cfg.Pairs[1] != "0xC:0xD" {
		t.Fatalf("pairs = %v", cfg.Pairs)
	}
}
