package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	statusPlaying = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true).
			Render

	statusPaused = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Render

	statusMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Render
)
