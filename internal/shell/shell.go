package shell

import (
	"context"
	"fmt"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

const (
	bannerText   = "System Bridge Active"
	bannerSize   = 14
	signalDotDim = 12
)

// Button is a preset command button.
type Button struct {
	Label   string
	Command string
}

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures the window.
type Options struct {
	Title   string
	Width   float32
	Height  float32
	LogSize int
	Buttons []Button

	// Submit queues a command from the window. Required.
	Submit func(ctx context.Context, command string) error

	// Events feeds the window. The shell does not cancel the subscription.
	Events <-chan events.Event

	// OnExit is called once when the window is closed or EXIT SYSTEM is
	// pressed, before the window quits.
	OnExit func()

	// OnPowerOff runs after the shutdown dialog is confirmed. Nil hides
	// the SHUTDOWN PI button.
	OnPowerOff func()

	Logger Logger
}

// Shell is the fyne status window.
type Shell struct {
	opts  Options
	model *Model

	app fyne.App
	win fyne.Window

	status     *canvas.Text
	signalDot  *canvas.Circle
	signalText *canvas.Text
	logList    *widget.List

	exitOnce sync.Once
	quitOnce sync.Once
}

// New builds the window. It must be called on the main goroutine.
func New(opts Options) *Shell {
	s := &Shell{
		opts:  opts,
		model: NewModel(opts.LogSize),
		app:   app.NewWithID("rail.shsf.hub"),
	}
	s.win = s.app.NewWindow(opts.Title)
	s.win.Resize(fyne.NewSize(opts.Width, opts.Height))
	s.win.SetCloseIntercept(s.exit)
	s.win.SetContent(s.build())
	s.render(Changes{Status: true, Signal: true, Log: true})
	return s
}

// Model returns the view state.
func (s *Shell) Model() *Model {
	return s.model
}

// Run shows the window and blocks until it quits. Cancelling ctx quits it.
func (s *Shell) Run(ctx context.Context) {
	go s.pump(ctx)
	s.win.ShowAndRun()
}

// Quit closes the window. Safe to call from any goroutine, more than once.
func (s *Shell) Quit() {
	s.quitOnce.Do(func() {
		fyne.Do(s.app.Quit)
	})
}

// pump applies bus events on the fyne goroutine until ctx ends.
func (s *Shell) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.Quit()
			return
		case e, ok := <-s.opts.Events:
			if !ok {
				return
			}
			fyne.Do(func() {
				s.render(s.model.Apply(e))
			})
		}
	}
}

func (s *Shell) build() fyne.CanvasObject {
	banner := canvas.NewText(bannerText, colorFor(events.ColorGreen))
	banner.TextSize = bannerSize
	banner.Alignment = fyne.TextAlignCenter

	s.status = canvas.NewText("", colorFor(events.ColorOrange))
	s.status.Alignment = fyne.TextAlignCenter

	s.signalDot = canvas.NewCircle(color.Gray{Y: 0x99})
	s.signalText = canvas.NewText("", foreground())
	signal := container.NewHBox(
		layout.NewSpacer(),
		container.NewGridWrap(fyne.NewSize(signalDotDim, signalDotDim), s.signalDot),
		s.signalText,
		layout.NewSpacer(),
	)

	commands := make([]fyne.CanvasObject, 0, len(s.opts.Buttons))
	for _, b := range s.opts.Buttons {
		command := b.Command
		commands = append(commands, widget.NewButton(b.Label, func() { s.submit(command) }))
	}

	s.logList = widget.NewList(
		s.model.Log().Len,
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(s.model.Log().At(id))
		},
	)

	clearLog := widget.NewButton("Clear Log", func() {
		s.model.ClearLog()
		s.render(Changes{Log: true})
	})

	exit := widget.NewButton("EXIT SYSTEM", s.exit)
	exit.Importance = widget.DangerImportance

	controls := []fyne.CanvasObject{clearLog, exit}
	if s.opts.OnPowerOff != nil {
		shutdown := widget.NewButton("SHUTDOWN PI", s.confirmPowerOff)
		shutdown.Importance = widget.HighImportance
		controls = append(controls, shutdown)
	}

	top := container.NewVBox(
		banner,
		s.status,
		signal,
		container.NewGridWithColumns(max(len(commands), 1), commands...),
	)
	bottom := container.NewGridWithColumns(len(controls), controls...)

	return container.NewBorder(top, bottom, nil, nil, s.logList)
}

// render must run on the fyne goroutine.
func (s *Shell) render(c Changes) {
	if c.Status {
		st := s.model.Status()
		s.status.Text = st.Text
		s.status.Color = colorFor(st.Color)
		s.status.Refresh()
	}
	if c.Signal {
		sig := s.model.Signal()
		if sig.Known {
			s.signalDot.FillColor = colorFor(sig.Color)
			s.signalText.Text = fmt.Sprintf("Signal %d%% (%d dBm)", sig.Quality, sig.RSSI)
		} else {
			s.signalText.Text = "Signal: no data"
		}
		s.signalDot.Refresh()
		s.signalText.Refresh()
	}
	if c.Log {
		s.logList.Refresh()
		s.logList.ScrollToBottom()
	}
}

func (s *Shell) submit(command string) {
	go func() {
		if err := s.opts.Submit(context.Background(), command); err != nil {
			s.logWarn("local command rejected", "command", command, "error", err)
			fyne.Do(func() {
				s.model.Reject(command, err)
				s.render(Changes{Status: true, Log: true})
			})
		}
	}()
}

func (s *Shell) exit() {
	s.exitOnce.Do(func() {
		s.logInfo("exit requested from window")
		if s.opts.OnExit != nil {
			s.opts.OnExit()
		}
		s.Quit()
	})
}

func (s *Shell) confirmPowerOff() {
	dialog.ShowConfirm("Shutdown", "Are you sure you want to shut down the Pi?", func(ok bool) {
		if !ok {
			return
		}
		s.logInfo("host shutdown confirmed")
		go s.opts.OnPowerOff()
	}, s.win)
}

func (s *Shell) logInfo(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

func (s *Shell) logWarn(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}
