package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"gridfill/enrich"
	"gridfill/grid"
	"gridfill/research"
	"gridfill/tui"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Styles
var (
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F87171"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94A3B8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#38BDF8")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	logo = `
    ╭─────────────────────────────────────╮
    │  ▦ gridfill - web research sheets   │
    ╰─────────────────────────────────────╯`
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	shortVersionFlag := flag.Bool("v", false, "Print version information (short)")
	serveFlag := flag.Bool("serve", false, "Run the HTTP proxy instead of the TUI")
	addrFlag := flag.String("addr", ":8324", "Listen address for -serve")
	fileFlag := flag.String("file", "", "CSV file to open (skips the picker)")
	tierFlag := flag.String("tier", "", "Research processor tier: lite, base, core or pro")
	flag.Parse()

	if *versionFlag || *shortVersionFlag {
		fmt.Printf("gridfill %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  go:     %s\n", runtime.Version())
		fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Load .env file if it exists (won't error if missing)
	_ = godotenv.Load()

	if err := research.CheckConfig(); err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		fmt.Println(infoStyle.Render(research.GetAPIKeyHelp()))
		os.Exit(1)
	}

	if *serveFlag {
		if err := runServe(*addrFlag); err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			os.Exit(1)
		}
		return
	}

	fmt.Println(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")).Render(logo))

	csvPath := *fileFlag
	if csvPath == "" {
		var ok bool
		csvPath, ok = pickCSVFile()
		if !ok {
			fmt.Println(infoStyle.Render("No file selected. Bye!"))
			return
		}
	}

	tier := research.Processor(*tierFlag)
	if *tierFlag == "" {
		var ok bool
		tier, ok = pickTier()
		if !ok {
			return
		}
	}
	if !tier.Valid() {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Error: unknown tier %q (want lite, base, core or pro)", *tierFlag)))
		os.Exit(1)
	}

	var g *grid.Grid
	var loadErr error
	err := spinner.New().
		Title("Loading " + csvPath + "...").
		Action(func() {
			g, loadErr = grid.LoadCSV(csvPath)
		}).
		Run()
	if err == nil {
		err = loadErr
	}
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}

	debug := os.Getenv("GRIDFILL_DEBUG") != ""

	client, err := research.NewClientFromEnv(research.WithDebug(debug))
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}

	// The alternate screen owns the terminal while the TUI runs, so the
	// runner's logs go nowhere unless debugging is on.
	logOut := io.Discard
	if debug {
		f, ferr := os.OpenFile("gridfill.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr == nil {
			defer f.Close()
			logOut = f
		}
	}
	logger := log.NewWithOptions(logOut, log.Options{ReportTimestamp: true})

	surface := tui.NewProgramSurface()
	runner := enrich.NewRunner(client, surface, enrich.WithLogger(logger))

	model := tui.NewModel(g, csvPath, runner, tier)
	p := tea.NewProgram(model, tea.WithAltScreen())
	surface.Attach(p)

	if _, err := p.Run(); err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}

	// Let an in-flight cancellation settle before the process exits.
	runner.Wait()

	fmt.Println(boxStyle.Render(fmt.Sprintf("▦ %s\nRemember to save your work with ctrl+s next time!", csvPath)))
}

func pickCSVFile() (string, bool) {
	var csvPath string
	startDir, _ := os.Getwd()

	filePicker := huh.NewFilePicker().
		Title("Select a CSV file").
		Description("Navigate and select a sheet to enrich").
		Picking(true).
		CurrentDirectory(startDir).
		ShowHidden(false).
		ShowPermissions(false).
		ShowSize(true).
		Height(15).
		AllowedTypes([]string{".csv"}).
		Value(&csvPath)

	err := huh.NewForm(huh.NewGroup(filePicker)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil {
		if err == huh.ErrUserAborted {
			return "", false
		}
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		return "", false
	}
	return csvPath, csvPath != ""
}

func pickTier() (research.Processor, bool) {
	var tier research.Processor
	tierSelect := huh.NewSelect[research.Processor]().
		Title("Research tier").
		Description("Heavier tiers take longer but dig deeper").
		Options(
			huh.NewOption("lite - quick lookups", research.ProcessorLite),
			huh.NewOption("base - standard research", research.ProcessorBase).Selected(true),
			huh.NewOption("core - thorough research", research.ProcessorCore),
			huh.NewOption("pro - exhaustive research", research.ProcessorPro),
		).
		Value(&tier)

	err := huh.NewForm(huh.NewGroup(tierSelect)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil {
		if err != huh.ErrUserAborted {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
		}
		return "", false
	}
	return tier, true
}
