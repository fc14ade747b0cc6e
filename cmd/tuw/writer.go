package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"tuw-telemetry/internal/config"
	"tuw-telemetry/internal/scenario"
	"tuw-telemetry/internal/sim"
)

// Echo modes for rows decoded from emitted frames.
const (
	echoNone   = "none"
	echoStdout = "stdout"
	echoTUI    = "tui"
)

// newWriter chooses the row destination for replay: GreptimeDB when an
// endpoint is configured and printOnly is off, STDOUT otherwise. A logFile
// adds a JSON lines copy. The returned cleanup closes whatever was opened.
func newWriter(cfg *config.Config, printOnly bool, logFile string, ov sim.Overview, log *slog.Logger) (sim.TelemetryWriter, func() error, error) {
	var writer sim.TelemetryWriter
	if printOnly || cfg.Greptime.Endpoint == "" {
		writer = sim.NewStdoutWriter(ov)
	} else {
		w, err := sim.NewGreptimeDBWriter(cfg.Greptime.Endpoint, cfg.Greptime.Database, cfg.Greptime.Table, log)
		if err != nil {
			return nil, nil, err
		}
		writer = w
	}
	return withLogFile(writer, logFile)
}

// newEchoWriter returns the writer record echoes rows to, or nil for none.
func newEchoWriter(mode, logFile string, ov sim.Overview) (sim.TelemetryWriter, func() error, error) {
	var writer sim.TelemetryWriter
	switch mode {
	case echoNone, "":
	case echoStdout:
		writer = sim.NewStdoutWriter(ov)
	case echoTUI:
		writer = sim.NewTUIWriter(ov)
	default:
		return nil, nil, fmt.Errorf("unknown echo mode %q (want %s, %s or %s)", mode, echoNone, echoStdout, echoTUI)
	}
	return withLogFile(writer, logFile)
}

func withLogFile(writer sim.TelemetryWriter, logFile string) (sim.TelemetryWriter, func() error, error) {
	closeWriter := func() error {
		if c, ok := writer.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}
	if logFile == "" {
		return writer, closeWriter, nil
	}
	fw, err := sim.NewFileWriter(logFile)
	if err != nil {
		return nil, nil, errors.Join(err, closeWriter())
	}
	if writer == nil {
		return fw, fw.Close, nil
	}
	mw := sim.NewMultiWriter(writer, fw)
	return mw, mw.Close, nil
}

// loadScript resolves name against the built-in scripts first and the file
// system second.
func loadScript(name string) (*scenario.Script, error) {
	if s, ok := scenario.BuiltIn()[name]; ok {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return &s, nil
	}
	s, err := scenario.Load(name)
	if err != nil {
		return nil, fmt.Errorf("%w (built-in scripts: %s)", err, strings.Join(builtInNames(), ", "))
	}
	return s, nil
}

func builtInNames() []string {
	var names []string
	for n := range scenario.BuiltIn() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
