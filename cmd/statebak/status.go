package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/git"
	"github.com/bashhack/statebak/internal/lock"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func (a *App) statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the lock holder, last backup and watched files",
		Action: a.statusAction,
	}
}

func (a *App) statusAction(_ context.Context, cmd *cli.Command) error {
	if args := cmd.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("status does not accept arguments")
	}
	if err := a.configure(cmd); err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	cfg := a.Config
	var b strings.Builder

	b.WriteString(titleStyle.Render("statebak status") + "\n")
	row(&b, "Repository", cfg.RepoPath)
	row(&b, "Remote", valueOr(redactedRemote(cfg.RemoteURL), dimStyle.Render("(not configured)")))
	row(&b, "Branch", cfg.Branch)
	if cfg.ConfigFile != "" {
		row(&b, "Config", cfg.ConfigFile)
	}

	row(&b, "Lock", a.lockStatus())

	state, err := git.ReadRepoState(cfg.RepoPath, cfg.Branch)
	switch {
	case statebakErrors.Is(err, statebakErrors.ErrNotGitRepository):
		row(&b, "Last backup", warnStyle.Render("repository not initialized"))
	case err != nil:
		row(&b, "Last backup", errStyle.Render(err.Error()))
	case state.Head == nil:
		row(&b, "Last backup", dimStyle.Render("none yet"))
	default:
		row(&b, "Last backup", fmt.Sprintf("%s %s %s", state.Head.Hash[:7], state.Head.Subject,
			dimStyle.Render("("+humanize.Time(state.Head.When)+")")))
		row(&b, "Unpushed", unpushed(state))
	}

	if len(cfg.Files) > 0 {
		b.WriteString(labelStyle.Render("Files") + "\n")
		for _, name := range cfg.Files {
			b.WriteString("  " + fileStatus(cfg.RepoPath, name) + "\n")
		}
	}

	_, _ = fmt.Fprint(a.Stdout, b.String())
	return nil
}

func (a *App) lockStatus() string {
	locker := lock.New(a.Config.RepoPath, lock.Options{StaleAfter: a.Config.StaleAfter})
	holder, err := locker.Inspect()
	switch {
	case statebakErrors.Is(err, fs.ErrNotExist):
		return okStyle.Render("free")
	case err != nil:
		return errStyle.Render(err.Error())
	}

	who := "unknown process"
	if holder.PID > 0 {
		who = fmt.Sprintf("PID %d", holder.PID)
	}
	text := fmt.Sprintf("held by %s since %s", who, humanize.Time(holder.Since))
	if locker.IsStale(holder) {
		return errStyle.Render(text + " (stale, will be removed by the next backup)")
	}
	return warnStyle.Render(text)
}

func unpushed(state git.RepoState) string {
	switch {
	case state.RemoteHead == "":
		return warnStyle.Render("never pushed")
	case state.Ahead < 0:
		return warnStyle.Render("unknown")
	case state.Ahead == 0:
		return okStyle.Render("up to date")
	default:
		return warnStyle.Render(fmt.Sprintf("%d commit(s) not pushed", state.Ahead))
	}
}

func fileStatus(repo, name string) string {
	info, err := os.Stat(filepath.Join(repo, name))
	if err != nil {
		return fmt.Sprintf("%s %s", name, errStyle.Render("missing"))
	}
	return fmt.Sprintf("%s %s %s", name, humanize.Bytes(uint64(info.Size())),
		dimStyle.Render("modified "+humanize.Time(info.ModTime())))
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label) + value + "\n")
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func redactedRemote(remote string) string {
	return git.RedactURL(remote)
}
