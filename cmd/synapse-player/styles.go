package main

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	BulletStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingRight(1)
	TextStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	DimTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	SpinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	CurrentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	SpeakerAStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	SpeakerBStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	ErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	NoticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
