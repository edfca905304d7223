package service

import (
	"context"
	"sync"

	"github.com/strogmv/renodesk/internal/port"
)

type SenderMock struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error)
	Calls    []port.OutboundMessage
}

func (m *SenderMock) Send(ctx context.Context, msg port.OutboundMessage) (port.SendResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return port.SendResult{Provider: "mock", ProviderMessageID: "msg-" + msg.To, ProviderStatus: "accepted"}, nil
}

func (m *SenderMock) CallsTo(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.To == addr {
			n++
		}
	}
	return n
}

type StatsMock struct {
	GetQuotaFunc      func(ctx context.Context) (port.SendQuota, error)
	GetStatisticsFunc func(ctx context.Context) ([]port.SendDataPoint, error)
}

func (m *StatsMock) GetQuota(ctx context.Context) (port.SendQuota, error) {
	if m.GetQuotaFunc != nil {
		return m.GetQuotaFunc(ctx)
	}
	return port.SendQuota{}, nil
}

func (m *StatsMock) GetStatistics(ctx context.Context) ([]port.SendDataPoint, error) {
	if m.GetStatisticsFunc != nil {
		return m.GetStatisticsFunc(ctx)
	}
	return nil, nil
}

type AlerterMock struct {
	AlertFunc func(ctx context.Context, alert port.Alert) error
	Alerts    []port.Alert
}

func (m *AlerterMock) Alert(ctx context.Context, alert port.Alert) error {
	m.Alerts = append(m.Alerts, alert)
	if m.AlertFunc != nil {
		return m.AlertFunc(ctx, alert)
	}
	return nil
}
