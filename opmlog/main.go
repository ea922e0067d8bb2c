package main

import (
	"context"
	"flag"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/display"
	"github.com/itohio/opmlog/pkg/record"
	"github.com/itohio/opmlog/pkg/stream"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		resourceFlag = flag.String("r", "", "VISA resource override (e.g., TCPIP0::192.168.1.10::inst0::INSTR or ASRL/dev/ttyUSB0::INSTR)")
		mockFlag     = flag.Bool("mock", false, "Start with simulated data instead of the instrument")
		recordFlag   = flag.String("record", "", "Record runs to this SQLite database")
		streamFlag   = flag.String("stream", "", "Serve live batches over websocket on this address (e.g., 127.0.0.1:8765)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *resourceFlag != "" {
		cfg.Instrument.Resource = *resourceFlag
	}
	if *mockFlag {
		cfg.Acquisition.Simulate = true
	}
	if *recordFlag != "" {
		cfg.Record.Enabled = true
		cfg.Record.Path = *recordFlag
	}
	if *streamFlag != "" {
		cfg.Stream.Enabled = true
		cfg.Stream.Addr = *streamFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		ctx:        ctx,
	}
	defer state.closeInstrument()

	// Optional sinks
	var sinks []display.Sink
	if cfg.Record.Enabled {
		rec, err := record.Open(cfg.Record.Path)
		if err != nil {
			log.Fatalf("Failed to open recording database: %v", err)
		}
		defer rec.Close()
		log.Printf("recording runs to %s", cfg.Record.Path)
		sinks = append(sinks, rec)
	}
	if cfg.Stream.Enabled {
		srv := stream.New(cfg.Stream)
		if err := srv.Start(); err != nil {
			log.Fatalf("Failed to start stream server: %v", err)
		}
		defer srv.Close()
		sinks = append(sinks, srv)
	}

	application := app.NewWithID("com.itohio.opmlog")

	window := application.NewWindow("N7745C Power Logger")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()
	state.window = window

	state.createPlots()
	state.controller = display.NewController(state.openDevice, &uiRenderer{state: state}, display.OptionsFromConfig(cfg), sinks...)

	content := container.NewBorder(
		state.createToolbar(),
		state.createStatusBar(),
		nil,
		nil,
		container.NewGridWithRows(2, state.tracePlot, state.historyPlot),
	)
	window.SetContent(content)
	window.SetCloseIntercept(state.confirmQuit)

	window.ShowAndRun()
}
