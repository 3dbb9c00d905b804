package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicyValues(t *testing.T) {
	cfg := Default()

	if cfg.Analysis.Signal.ADXThreshold != 20 {
		t.Errorf("порог ADX по умолчанию 20, получено %v", cfg.Analysis.Signal.ADXThreshold)
	}
	if cfg.Analysis.Signal.BaseConfidence != 85 || cfg.Analysis.Signal.MaxConfidence != 95 {
		t.Errorf("базовая уверенность 85 с потолком 95, получено %v/%v",
			cfg.Analysis.Signal.BaseConfidence, cfg.Analysis.Signal.MaxConfidence)
	}
	if cfg.Analysis.MetaAI.VoteThreshold != 0.15 {
		t.Errorf("порог голосования 0.15, получено %v", cfg.Analysis.MetaAI.VoteThreshold)
	}
	if cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Errorf("лимит серии убытков 3, получено %d", cfg.Risk.MaxConsecutiveLosses)
	}
	if cfg.TPSL.ATRMultiplierSL != 1.5 || cfg.TPSL.ATRMultiplierTP != 2.5 {
		t.Errorf("множители ATR 1.5/2.5, получено %v/%v",
			cfg.TPSL.ATRMultiplierSL, cfg.TPSL.ATRMultiplierTP)
	}
	if len(cfg.Trading.Symbols) == 0 {
		t.Error("список символов по умолчанию не должен быть пустым")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
trading:
  symbols: ["ETHUSDT", "SOLUSDT"]
  interval: "5m"
risk:
  max_daily_drawdown: 3.5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("не удалось записать временный конфиг: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("загрузка конфигурации не должна падать: %v", err)
	}

	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[0] != "ETHUSDT" {
		t.Errorf("символы из файла должны перекрывать значения по умолчанию: %v", cfg.Trading.Symbols)
	}
	if cfg.Trading.Interval != "5m" {
		t.Errorf("интервал из файла должен перекрывать значение по умолчанию: %s", cfg.Trading.Interval)
	}
	if cfg.Risk.MaxDailyDrawdown != 3.5 {
		t.Errorf("лимит просадки из файла 3.5, получено %v", cfg.Risk.MaxDailyDrawdown)
	}
	// Не заданные в файле значения остаются из Default
	if cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Errorf("незаданное поле должно сохранять значение по умолчанию: %d", cfg.Risk.MaxConsecutiveLosses)
	}
	if cfg.Analysis.Signal.BaseConfidence != 85 {
		t.Errorf("пороги сигналов не должны сбрасываться: %v", cfg.Analysis.Signal.BaseConfidence)
	}
}
