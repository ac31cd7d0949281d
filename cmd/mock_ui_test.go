package cmd

import (
	"github.com/stretchr/testify/mock"

	"github.com/mouse-blink/storyteller/internal/controller"
	m "github.com/mouse-blink/storyteller/internal/model"
)

var _ controller.UI = (*mockUI)(nil)

type mockUI struct {
	mock.Mock
}

func (u *mockUI) Start(_ ...controller.StartOption) error {
	args := u.Called()

	return args.Error(0)
}

func (u *mockUI) Close() {
	u.Called()
}

func (u *mockUI) UpdateCallGraph(graph m.CallGraph) error {
	return u.Called(graph).Error(0)
}

func (u *mockUI) UpdateWhatIfAnalysis(result m.WhatIfResult) error {
	return u.Called(result).Error(0)
}

func (u *mockUI) UpdateSideEffects(summary m.SideEffectSummary) error {
	return u.Called(summary).Error(0)
}

func (u *mockUI) UpdateVariableHistory(history m.VariableHistory) error {
	return u.Called(history).Error(0)
}

func (u *mockUI) DebugSessionStarted(info m.SessionInfo) {
	u.Called(info)
}

func (u *mockUI) DebugSessionEnded(info m.SessionInfo) {
	u.Called(info)
}

func (u *mockUI) DisplaySelfTest(statuses []m.SubsystemStatus) error {
	return u.Called(statuses).Error(0)
}

func (u *mockUI) DisplayReports(reports []m.Report) error {
	return u.Called(reports).Error(0)
}

func (u *mockUI) DisplaySessions(records []m.SessionRecord) error {
	return u.Called(records).Error(0)
}
