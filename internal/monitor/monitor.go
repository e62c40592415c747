package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"devicemonitor/internal/config"
	"devicemonitor/internal/entitytype"
	"devicemonitor/internal/ha"
	"devicemonitor/internal/registry"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Localizer supplies the translated strings a monitor renders
type Localizer interface {
	// Language is the language names are collated in
	Language() language.Tag
	// Text returns the translation of key, or fallback
	Text(key, fallback string) string
	// FormatState returns the localized display of an entity state, or ""
	FormatState(state *ha.State) string
}

// ViewState is the card's display-only toggle state
type ViewState struct {
	// ShowAll lists every device instead of alerts only (show_toggle)
	ShowAll bool
	// Expanded reveals the devices hidden by collapse
	Expanded bool
}

// DeviceView is a device as a card row
type DeviceView struct {
	DeviceID      string    `json:"device_id"`
	EntityID      string    `json:"entity_id"`
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Icon          string    `json:"icon"`
	Color         string    `json:"color"`
	IsAlert       bool      `json:"is_alert"`
	IsUnavailable bool      `json:"is_unavailable"`
	LastChanged   time.Time `json:"last_changed"`
	AreaName      string    `json:"area_name,omitempty"`
}

// CardItem is one row of a card: a group header or a device
type CardItem struct {
	Header string      `json:"header,omitempty"`
	Device *DeviceView `json:"device,omitempty"`
}

// CardView is a rendered card
type CardView struct {
	Title        string     `json:"title"`
	Visible      bool       `json:"visible"`
	Items        []CardItem `json:"items"`
	HiddenCount  int        `json:"hidden_count"`
	AlertCount   int        `json:"alert_count"`
	TotalDevices int        `json:"total_devices"`
	EmptyMessage string     `json:"empty_message,omitempty"`
	ShowToggle   bool       `json:"show_toggle"`
	ShowingAll   bool       `json:"showing_all"`
	ToggleLabel  string     `json:"toggle_label,omitempty"`
	ExpandLabel  string     `json:"expand_label,omitempty"`
}

// BadgeView is a rendered badge
type BadgeView struct {
	Text            string         `json:"text"`
	Title           string         `json:"title"`
	AlertCount      int            `json:"alert_count"`
	TotalDevices    int            `json:"total_devices"`
	Icon            string         `json:"icon"`
	Color           string         `json:"color"`
	Visible         bool           `json:"visible"`
	TapAction       *config.Action `json:"tap_action,omitempty"`
	HoldAction      *config.Action `json:"hold_action,omitempty"`
	DoubleTapAction *config.Action `json:"double_tap_action,omitempty"`
}

// Monitor renders the card and badge of one configured monitor
type Monitor struct {
	cfg        *config.Monitor
	strategy   entitytype.Strategy
	aggregator *Aggregator
	sorter     *Sorter
	localizer  Localizer
	logger     *zap.Logger
	debug      bool
}

// New creates a monitor. The entity type is resolved here, once; an unknown
// type is a configuration error.
func New(cfg *config.Monitor, localizer Localizer, logger *zap.Logger) (*Monitor, error) {
	strategy, ok := entitytype.Lookup(cfg.EntityType)
	if !ok {
		return nil, fmt.Errorf("monitor %q: %w: %q", cfg.Name, config.ErrUnknownEntityType, cfg.EntityType)
	}

	logger = logger.Named("monitor").With(zap.String("monitor", cfg.Name))
	return &Monitor{
		cfg:        cfg,
		strategy:   strategy,
		aggregator: NewAggregator(logger),
		sorter:     NewSorter(localizer.Language()),
		localizer:  localizer,
		logger:     logger,
		debug:      logger.Core().Enabled(zap.DebugLevel),
	}, nil
}

// Name returns the monitor's configured name
func (m *Monitor) Name() string {
	return m.cfg.Name
}

// Config returns the monitor's configuration
func (m *Monitor) Config() *config.Monitor {
	return m.cfg
}

// Title returns the configured title or the localized default title
func (m *Monitor) Title() string {
	if m.cfg.Title != "" {
		return m.cfg.Title
	}
	return m.localizer.Text(string(m.cfg.EntityType)+".title", m.strategy.DefaultTitle())
}

// Collect runs the aggregation for the snapshot
func (m *Monitor) Collect(snap *registry.Snapshot) *Result {
	return m.aggregator.CollectDevices(snap, m.cfg, m.localizer.FormatState, Options{
		IncludeArea: true,
		Debug:       m.debug,
	})
}

// alertDevices returns the alerting devices, with unavailable devices folded
// in when show_unavailable is set
func (m *Monitor) alertDevices(result *Result) []*Device {
	if !m.cfg.ShowUnavailable {
		return result.AlertDevices
	}

	seen := make(map[string]bool, len(result.AlertDevices))
	alerts := make([]*Device, 0, len(result.AlertDevices)+len(result.UnavailableDevices))
	for _, d := range result.AlertDevices {
		seen[d.EntityID] = true
		alerts = append(alerts, d)
	}
	for _, d := range result.UnavailableDevices {
		if !seen[d.EntityID] {
			seen[d.EntityID] = true
			alerts = append(alerts, d)
		}
	}
	return alerts
}

// Rendering is the card and badge of one aggregation pass
type Rendering struct {
	Card   *CardView
	Badge  *BadgeView
	Result *Result
}

// Render aggregates once and renders both views with the default view state
func (m *Monitor) Render(snap *registry.Snapshot) *Rendering {
	result := m.Collect(snap)
	return &Rendering{
		Card:   m.renderCard(snap, result, ViewState{}, false),
		Badge:  m.renderBadge(result, false),
		Result: result,
	}
}

// RenderCard renders the card. In edit mode the card is always visible.
func (m *Monitor) RenderCard(snap *registry.Snapshot, view ViewState, editMode bool) *CardView {
	return m.renderCard(snap, m.Collect(snap), view, editMode)
}

func (m *Monitor) renderCard(snap *registry.Snapshot, result *Result, view ViewState, editMode bool) *CardView {
	alerts := m.alertDevices(result)

	showingAll := m.cfg.Filter == config.FilterAll || (m.cfg.ShowToggle && view.ShowAll)
	devices := alerts
	if showingAll {
		devices = result.AllDevices
	}

	items := GroupDevices(snap, devices, m.cfg.GroupBy)
	items = m.sorter.Sort(items, m.cfg.SortBy, m.cfg.UseEntityName())

	hidden := 0
	if limit := m.cfg.CollapseAfter(); limit > 0 && !view.Expanded && len(devices) > limit {
		items = collapse(items, limit)
		hidden = len(devices) - limit
	}

	card := &CardView{
		Title:        m.Title(),
		Visible:      editMode || m.cfg.CardVisibility == config.VisibilityAlways || len(alerts) > 0,
		Items:        m.cardItems(items),
		HiddenCount:  hidden,
		AlertCount:   len(alerts),
		TotalDevices: result.TotalDevices,
		ShowToggle:   m.cfg.ShowToggle,
		ShowingAll:   showingAll,
	}
	if m.cfg.ShowToggle {
		if showingAll {
			card.ToggleLabel = m.localizer.Text("card.show_alerts", "Show alerts only")
		} else {
			card.ToggleLabel = m.localizer.Text("card.show_all", "Show all")
		}
	}
	if hidden > 0 {
		card.ExpandLabel = strings.ReplaceAll(m.localizer.Text("card.more", "+{count} more"), "{count}", strconv.Itoa(hidden))
	}
	if len(devices) == 0 {
		card.EmptyMessage = m.localizer.Text(string(m.cfg.EntityType)+".empty", m.strategy.EmptyMessage())
	}
	return card
}

// collapse keeps the first limit devices and the headers of their groups
func collapse(items []Item, limit int) []Item {
	out := make([]Item, 0, limit)
	var pending *Header
	kept := 0
	for _, item := range items {
		if kept == limit {
			break
		}
		switch it := item.(type) {
		case Header:
			h := it
			pending = &h
		case *Device:
			if pending != nil {
				out = append(out, *pending)
				pending = nil
			}
			out = append(out, it)
			kept++
		}
	}
	return out
}

func (m *Monitor) cardItems(items []Item) []CardItem {
	out := make([]CardItem, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case Header:
			out = append(out, CardItem{Header: m.groupLabel(it.Name)})
		case *Device:
			out = append(out, CardItem{Device: m.deviceView(it)})
		}
	}
	return out
}

func (m *Monitor) groupLabel(name string) string {
	switch name {
	case NoArea:
		return m.localizer.Text("group.no_area", NoArea)
	case NoFloor:
		return m.localizer.Text("group.no_floor", NoFloor)
	}
	return name
}

func (m *Monitor) deviceView(d *Device) *DeviceView {
	name := d.DeviceName
	if m.cfg.UseEntityName() {
		name = d.EntityName
	}

	state := d.StateInfo.DisplayValue
	if d.StateInfo.IsUnavailable {
		state = m.localizer.Text("state.unavailable", "Unavailable")
	}

	return &DeviceView{
		DeviceID:      d.DeviceID,
		EntityID:      d.EntityID,
		Name:          name,
		State:         state,
		Icon:          m.strategy.Icon(d.StateInfo),
		Color:         m.strategy.Color(d.StateInfo),
		IsAlert:       d.StateInfo.IsAlert,
		IsUnavailable: d.StateInfo.IsUnavailable,
		LastChanged:   d.LastChanged,
		AreaName:      d.AreaName,
	}
}

// RenderBadge renders the badge. In edit mode the badge is always visible.
func (m *Monitor) RenderBadge(snap *registry.Snapshot, editMode bool) *BadgeView {
	return m.renderBadge(m.Collect(snap), editMode)
}

func (m *Monitor) renderBadge(result *Result, editMode bool) *BadgeView {
	alertCount := len(m.alertDevices(result))
	title := m.Title()

	return &BadgeView{
		Text:            fmt.Sprintf("%s (%d/%d)", title, alertCount, result.TotalDevices),
		Title:           title,
		AlertCount:      alertCount,
		TotalDevices:    result.TotalDevices,
		Icon:            m.strategy.BadgeIcon(alertCount),
		Color:           m.strategy.BadgeColor(alertCount),
		Visible:         editMode || m.cfg.BadgeVisibility == config.VisibilityAlways || alertCount > 0,
		TapAction:       m.cfg.TapAction,
		HoldAction:      m.cfg.HoldAction,
		DoubleTapAction: m.cfg.DoubleTapAction,
	}
}
