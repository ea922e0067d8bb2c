package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/opmlog/pkg/visa"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createInstrumentTab(state),
		createAcquisitionTab(state),
		createDisplayTab(state),
		createMockTab(state),
		createOutputTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 400))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 400))
	d.Show()
}

func (s *appState) saveConfig() {
	if err := s.cfg.Save(s.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), s.window)
	}
}

// createInstrumentTab creates the instrument connection tab. A changed
// setting reconnects at the next Start.
func createInstrumentTab(state *appState) *container.TabItem {
	// Serial ports are offered next to the configured resource; LAN
	// resources are typed in.
	options := []string{state.cfg.Instrument.Resource}
	if ports, err := visa.Ports(); err == nil {
		for _, p := range ports {
			if p != state.cfg.Instrument.Resource {
				options = append(options, p)
			}
		}
	}

	resourceSelect := widget.NewSelectEntry(options)
	resourceSelect.SetText(state.cfg.Instrument.Resource)

	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(state.cfg.Instrument.Timeout.String())

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Instrument.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "VISA Resource", Widget: resourceSelect},
			{Text: "I/O Timeout", Widget: timeoutEntry},
			{Text: "Baud Rate (serial)", Widget: baudEntry},
		},
		OnSubmit: func() {
			if _, err := visa.ParseResource(resourceSelect.Text); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			state.cfg.Instrument.Resource = resourceSelect.Text
			if d, err := time.ParseDuration(timeoutEntry.Text); err == nil && d > 0 {
				state.cfg.Instrument.Timeout = d
			}
			if b, err := strconv.Atoi(baudEntry.Text); err == nil && b > 0 {
				state.cfg.Instrument.BaudRate = b
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Instrument", form)
}

// createAcquisitionTab creates the loop pacing tab. Changes apply at the next Start.
func createAcquisitionTab(state *appState) *container.TabItem {
	pollEntry := widget.NewEntry()
	pollEntry.SetText(state.cfg.Acquisition.PollInterval.String())

	completionEntry := widget.NewEntry()
	completionEntry.SetText(state.cfg.Acquisition.CompletionTimeout.String())

	bufferEntry := widget.NewEntry()
	bufferEntry.SetText(strconv.Itoa(state.cfg.Acquisition.BatchBuffer))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Completion Poll Interval", Widget: pollEntry},
			{Text: "Completion Timeout (0=none)", Widget: completionEntry},
			{Text: "Batch Queue", Widget: bufferEntry},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(pollEntry.Text); err == nil && d > 0 {
				state.cfg.Acquisition.PollInterval = d
			}
			if d, err := time.ParseDuration(completionEntry.Text); err == nil && d >= 0 {
				state.cfg.Acquisition.CompletionTimeout = d
			}
			if n, err := strconv.Atoi(bufferEntry.Text); err == nil && n > 0 {
				state.cfg.Acquisition.BatchBuffer = n
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// createDisplayTab creates the plot settings tab. The refresh interval applies
// at the next Start, the history size after restart.
func createDisplayTab(state *appState) *container.TabItem {
	historyEntry := widget.NewEntry()
	historyEntry.SetText(strconv.Itoa(state.cfg.Display.HistorySize))

	tickEntry := widget.NewEntry()
	tickEntry.SetText(state.cfg.Display.TickInterval.String())

	traceEntry := widget.NewEntry()
	traceEntry.SetText(strconv.Itoa(state.cfg.Display.MaxTracePoints))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "History Size (after restart)", Widget: historyEntry},
			{Text: "Refresh Interval", Widget: tickEntry},
			{Text: "Max Trace Points", Widget: traceEntry},
		},
		OnSubmit: func() {
			if n, err := strconv.Atoi(historyEntry.Text); err == nil && n > 0 {
				state.cfg.Display.HistorySize = n
			}
			if d, err := time.ParseDuration(tickEntry.Text); err == nil && d > 0 {
				state.cfg.Display.TickInterval = d
			}
			if n, err := strconv.Atoi(traceEntry.Text); err == nil && n > 0 {
				state.cfg.Display.MaxTracePoints = n
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Display", form)
}

// createMockTab creates the simulation tab.
func createMockTab(state *appState) *container.TabItem {
	maxEntry := widget.NewEntry()
	maxEntry.SetText(strconv.Itoa(state.cfg.Mock.MaxValue))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Max Value", Widget: maxEntry},
		},
		OnSubmit: func() {
			if n, err := strconv.Atoi(maxEntry.Text); err == nil && n > 0 {
				state.cfg.Mock.MaxValue = n
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Simulation", form)
}

// createOutputTab creates the recording and streaming tab. Changes apply after restart.
func createOutputTab(state *appState) *container.TabItem {
	recordCheck := widget.NewCheck("Record runs", nil)
	recordCheck.SetChecked(state.cfg.Record.Enabled)

	recordPath := widget.NewEntry()
	recordPath.SetText(state.cfg.Record.Path)

	streamCheck := widget.NewCheck("Websocket feed", nil)
	streamCheck.SetChecked(state.cfg.Stream.Enabled)

	streamAddr := widget.NewEntry()
	streamAddr.SetText(state.cfg.Stream.Addr)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Recording", Widget: recordCheck},
			{Text: "Database", Widget: recordPath},
			{Text: "Streaming", Widget: streamCheck},
			{Text: "Listen Address", Widget: streamAddr},
		},
		OnSubmit: func() {
			state.cfg.Record.Enabled = recordCheck.Checked
			if recordPath.Text != "" {
				state.cfg.Record.Path = recordPath.Text
			}
			state.cfg.Stream.Enabled = streamCheck.Checked
			if streamAddr.Text != "" {
				state.cfg.Stream.Addr = streamAddr.Text
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Output", form)
}
