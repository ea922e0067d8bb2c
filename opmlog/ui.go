package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/opmlog/pkg/acquire"
	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/display"
	"github.com/itohio/opmlog/pkg/n7745c"
	"github.com/itohio/opmlog/pkg/scope"
	"github.com/itohio/opmlog/pkg/visa"
)

var (
	traceColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	historyColor = color.RGBA{R: 100, G: 200, B: 255, A: 255}
)

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	ctx        context.Context
	window     fyne.Window
	controller *display.Controller

	tracePlot   *scope.Plot
	historyPlot *scope.Plot

	pointsEntry      *widget.Entry
	integrationEntry *widget.Entry
	unitSelect       *widget.Select
	delayEntry       *widget.Entry
	simulateCheck    *widget.Check
	startBtn         *widget.Button
	stopBtn          *widget.Button
	progress         *widget.ProgressBarInfinite
	statusLabel      *widget.Label

	// Instrument connection, reused between runs (protected by devMu)
	devMu         sync.Mutex
	next          runSettings
	instrument    *n7745c.Instrument
	instrumentCfg config.InstrumentConfig
}

// runSettings is the part of the config read off the UI thread while a run
// starts.
type runSettings struct {
	instrument config.InstrumentConfig
	mock       config.MockConfig
}

func (s *appState) createPlots() {
	s.tracePlot = scope.New("Batch", "sample", "power", traceColor, s.cfg.Display.MaxTracePoints)
	s.historyPlot = scope.New("History (first sample per batch)", "batch", "power", historyColor, 0)
}

// createToolbar creates the acquisition controls.
func (s *appState) createToolbar() fyne.CanvasObject {
	acq := s.cfg.Acquisition

	s.pointsEntry = widget.NewEntry()
	s.pointsEntry.SetText(strconv.Itoa(acq.Points))

	s.integrationEntry = widget.NewEntry()
	s.integrationEntry.SetText(strconv.FormatFloat(acq.IntegrationTime, 'g', -1, 64))

	units := make([]string, len(n7745c.TimeUnits))
	for i, u := range n7745c.TimeUnits {
		units[i] = string(u)
	}
	s.unitSelect = widget.NewSelect(units, nil)
	s.unitSelect.SetSelected(acq.TimeUnit)

	s.delayEntry = widget.NewEntry()
	s.delayEntry.SetText(strconv.FormatFloat(acq.LoopDelay, 'g', -1, 64))

	s.simulateCheck = widget.NewCheck("Simulate", nil)
	s.simulateCheck.SetChecked(acq.Simulate)

	s.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), s.handleStart)
	s.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), s.handleStop)
	s.stopBtn.Disable()

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(s)
	})

	form := container.NewHBox(
		widget.NewLabel("Points"), sized(s.pointsEntry, 90),
		widget.NewLabel("Integration"), sized(s.integrationEntry, 80),
		s.unitSelect,
		widget.NewLabel("Delay (s)"), sized(s.delayEntry, 70),
		s.simulateCheck,
	)

	return container.NewBorder(
		nil,
		nil,
		form,
		container.NewHBox(s.startBtn, s.stopBtn, settingsBtn),
		nil,
	)
}

func (s *appState) createStatusBar() fyne.CanvasObject {
	s.progress = widget.NewProgressBarInfinite()
	s.progress.Stop()
	s.progress.Hide()

	s.statusLabel = widget.NewLabel("Idle")
	return container.NewBorder(nil, nil, nil, nil, container.NewVBox(s.progress, s.statusLabel))
}

// sized wraps an entry so that the HBox layout gives it a usable width.
func sized(o fyne.CanvasObject, width float32) fyne.CanvasObject {
	return container.NewGridWrap(fyne.NewSize(width, o.MinSize().Height), o)
}

// handleStart validates the inputs and starts a run.
func (s *appState) handleStart() {
	cfg, err := acquire.ParseConfig(s.pointsEntry.Text, s.integrationEntry.Text, s.unitSelect.Selected, s.delayEntry.Text)
	if err != nil {
		dialog.ShowError(err, s.window)
		return
	}
	simulate := s.simulateCheck.Checked

	s.cfg.Acquisition = cfg.Settings(s.cfg.Acquisition)
	s.cfg.Acquisition.Simulate = simulate
	if err := s.cfg.Save(s.configPath); err != nil {
		log.Printf("failed to save config: %v", err)
	}

	s.prepareRun()
	s.startBtn.Disable()
	s.setStatus(fmt.Sprintf("Starting: batch of %s", cfg.BatchDuration()))

	// Connecting may block up to the instrument timeout.
	go func() {
		if err := s.controller.Start(s.ctx, cfg, simulate); err != nil {
			fyne.Do(func() {
				s.startBtn.Enable()
				s.statusLabel.SetText("Idle")
				dialog.ShowError(fmt.Errorf("failed to start acquisition: %w", err), s.window)
			})
		}
	}()
}

// prepareRun applies the current settings to the next run. It must be
// called on the UI thread, which owns s.cfg.
func (s *appState) prepareRun() {
	s.controller.SetOptions(display.OptionsFromConfig(s.cfg))

	s.devMu.Lock()
	defer s.devMu.Unlock()
	s.next = runSettings{instrument: s.cfg.Instrument, mock: s.cfg.Mock}
}

func (s *appState) handleStop() {
	s.stopBtn.Disable()
	go func() {
		if err := s.controller.Stop(); err != nil {
			fyne.Do(func() {
				dialog.ShowError(err, s.window)
			})
		}
	}()
}

// confirmQuit asks before closing the main window and stops a running
// acquisition first.
func (s *appState) confirmQuit() {
	dialog.ShowConfirm("Quit", "Stop logging and quit?", func(ok bool) {
		if !ok {
			return
		}
		go func() {
			if err := s.controller.Stop(); err != nil {
				log.Printf("acquisition ended with: %v", err)
			}
			fyne.Do(s.window.Close)
		}()
	}, s.window)
}

func (s *appState) setInputsEnabled(enabled bool) {
	for _, w := range []fyne.Disableable{s.pointsEntry, s.integrationEntry, s.unitSelect, s.delayEntry, s.simulateCheck} {
		if enabled {
			w.Enable()
		} else {
			w.Disable()
		}
	}
}

func (s *appState) setStatus(text string) {
	s.statusLabel.SetText(text)
}

// openDevice returns a fresh simulated instrument or a connection to the
// configured resource, reconnecting when the instrument settings changed.
func (s *appState) openDevice(ctx context.Context, simulate bool) (n7745c.Device, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	settings := s.next
	if simulate {
		return n7745c.NewMock(&settings.mock), nil
	}

	if s.instrument != nil && s.instrumentCfg == settings.instrument {
		return s.instrument, nil
	}
	if s.instrument != nil {
		s.instrument.Close()
		s.instrument = nil
	}

	inst, idn, err := n7745c.Connect(ctx, settings.instrument.Resource, visa.Options{
		Timeout:  settings.instrument.Timeout,
		BaudRate: settings.instrument.BaudRate,
	})
	if err != nil {
		return nil, err
	}
	s.instrument = inst
	s.instrumentCfg = settings.instrument

	fyne.Do(func() {
		s.setStatus("Connected: " + idn)
	})
	return inst, nil
}

func (s *appState) closeInstrument() {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if s.instrument != nil {
		if err := s.instrument.Close(); err != nil {
			log.Printf("failed to close instrument: %v", err)
		}
		s.instrument = nil
	}
}

// uiRenderer draws controller output on the Fyne thread.
type uiRenderer struct {
	state *appState
}

var _ display.Renderer = (*uiRenderer)(nil)

func (r *uiRenderer) ShowTrace(b acquire.Batch) {
	info := traceInfo(b)
	fyne.Do(func() {
		r.state.tracePlot.SetValues(b.Values)
		r.state.tracePlot.SetInfo(info)
	})
}

func (r *uiRenderer) ShowHistory(points []display.Point, lo, hi int) {
	series := historySeries(points)
	fyne.Do(func() {
		r.state.historyPlot.SetXRange(float64(lo), float64(hi))
		r.state.historyPlot.SetSeries(series)
	})
}

func (r *uiRenderer) ShowProgress(d time.Duration) {
	fyne.Do(func() {
		r.state.setStatus(fmt.Sprintf("Running: fetching batch of %s", d))
	})
}

func (r *uiRenderer) ShowState(st acquire.State) {
	fyne.Do(func() {
		s := r.state
		running := st == acquire.Running
		s.setInputsEnabled(!running)
		if running {
			s.startBtn.Disable()
			s.stopBtn.Enable()
			s.progress.Show()
			s.progress.Start()
			s.tracePlot.Clear()
			s.historyPlot.Clear()
			return
		}
		s.startBtn.Enable()
		s.stopBtn.Disable()
		s.progress.Stop()
		s.progress.Hide()
		s.setStatus("Idle")
	})
}

func (r *uiRenderer) ShowError(err error) {
	// The next run reconnects.
	r.state.closeInstrument()
	fyne.Do(func() {
		dialog.ShowError(fmt.Errorf("acquisition stopped: %w", err), r.state.window)
	})
}

// traceInfo summarises a batch for the trace plot annotation.
func traceInfo(b acquire.Batch) string {
	st := b.Stats()
	if st.Count == 0 {
		return fmt.Sprintf("#%d  empty", b.Seq)
	}
	return fmt.Sprintf("#%d  n=%d  min=%.4g  max=%.4g  mean=%.4g", b.Seq, st.Count, st.Min, st.Max, st.Mean)
}

func historySeries(points []display.Point) []scope.Point {
	out := make([]scope.Point, len(points))
	for i, p := range points {
		out[i] = scope.Point{X: float64(p.Index), Y: p.Value}
	}
	return out
}
