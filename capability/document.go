package capability

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/errors"
)

// Document element and attribute names.
const (
	rootConfiguration = "AMMModuleConfiguration"
	rootStatus        = "AMMModuleStatus"

	// HighFrequencyTopic is the subscribed topic name that denotes a waveform
	// subscription; its nodepath is prefixed with WaveformPrefix.
	HighFrequencyTopic = "AMM_HighFrequencyNode_Data"
	// WaveformPrefix prefixes waveform topic keys.
	WaveformPrefix = "HF_"
	// HaltingError marks a status document as inoperative.
	HaltingError = "HALTING_ERROR"
)

// Module identifies the module that sent a document.
type Module struct {
	Name          string
	Manufacturer  string
	Model         string
	SerialNumber  string
	ModuleVersion string
}

// Settings is one capability's block of setting values.
type Settings struct {
	Capability string
	Values     map[string]string
}

// Plan is a fully validated capability document, ready to apply.
type Plan struct {
	Module     Module
	Subscribed []string
	Published  []string
	// Settings holds the capabilities that declared starting settings, in
	// document order.
	Settings []Settings
	Raw      string
}

// StatusReport is a parsed status document.
type StatusReport struct {
	Module string
	Value  bus.StatusValue
}

// ParseCapabilities validates a capability document and builds its plan.
func ParseCapabilities(doc []byte) (*Plan, error) {
	module, err := moduleElement(doc, rootConfiguration, "ParseCapabilities")
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Module: Module{
			Name:          module.SelectAttrValue("name", ""),
			Manufacturer:  module.SelectAttrValue("manufacturer", ""),
			Model:         module.SelectAttrValue("model", ""),
			SerialNumber:  module.SelectAttrValue("serial_number", ""),
			ModuleVersion: module.SelectAttrValue("module_version", ""),
		},
		Raw: string(doc),
	}

	subscribed := newOrderedSet()
	published := newOrderedSet()

	for _, capEl := range capabilityElements(module) {
		name := capEl.SelectAttrValue("name", "")
		if starting := capEl.SelectElement("starting_settings"); starting != nil && name != "" {
			plan.Settings = append(plan.Settings, Settings{Capability: name, Values: settingValues(starting)})
		}

		if subs := capEl.SelectElement("subscribed_topics"); subs != nil {
			for _, topic := range subs.SelectElements("topic") {
				subscribed.add(subscriptionKey(topic))
			}
		}
		if pubs := capEl.SelectElement("published_topics"); pubs != nil {
			for _, topic := range pubs.SelectElements("topic") {
				published.add(topic.SelectAttrValue("name", ""))
			}
		}
	}

	plan.Subscribed = subscribed.items
	plan.Published = published.items
	return plan, nil
}

// ParseSettings validates a settings document and returns every capability
// block carrying a configuration element.
func ParseSettings(doc []byte) (Module, []Settings, error) {
	module, err := moduleElement(doc, rootConfiguration, "ParseSettings")
	if err != nil {
		return Module{}, nil, err
	}

	var out []Settings
	for _, capEl := range capabilityElements(module) {
		name := capEl.SelectAttrValue("name", "")
		cfg := capEl.SelectElement("configuration")
		if cfg == nil || name == "" {
			continue
		}
		out = append(out, Settings{Capability: name, Values: settingValues(cfg)})
	}
	return Module{Name: module.SelectAttrValue("name", "")}, out, nil
}

// ParseStatus validates a status document. The module is inoperative when
// the raw document mentions HaltingError anywhere.
func ParseStatus(doc []byte) (StatusReport, error) {
	module, err := moduleElement(doc, rootStatus, "ParseStatus")
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{Module: module.SelectAttrValue("name", ""), Value: bus.StatusOperational}
	if strings.Contains(string(doc), HaltingError) {
		report.Value = bus.StatusInoperative
	}
	return report, nil
}

// moduleElement parses doc and returns its module element, checking that the
// root is rootTag and the module carries a name.
func moduleElement(doc []byte, rootTag, op string) (*etree.Element, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMalformedDocument, err), "Negotiator", op, "parse XML")
	}

	root := tree.Root()
	if root == nil || root.Tag != rootTag {
		return nil, errors.WrapInvalid(errors.ErrMalformedDocument, "Negotiator", op, "find "+rootTag+" root")
	}
	module := root.SelectElement("module")
	if module == nil {
		return nil, errors.WrapInvalid(errors.ErrMalformedDocument, "Negotiator", op, "find module element")
	}
	if module.SelectAttrValue("name", "") == "" {
		return nil, errors.WrapInvalid(errors.ErrMalformedDocument, "Negotiator", op, "read module name")
	}
	return module, nil
}

func capabilityElements(module *etree.Element) []*etree.Element {
	caps := module.SelectElement("capabilities")
	if caps == nil {
		return nil
	}
	return caps.SelectElements("capability")
}

func settingValues(parent *etree.Element) map[string]string {
	values := make(map[string]string)
	for _, s := range parent.SelectElements("setting") {
		name := s.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		values[name] = s.SelectAttrValue("value", "")
	}
	return values
}

// subscriptionKey returns the topic key a subscribed topic element registers.
func subscriptionKey(topic *etree.Element) string {
	name := topic.SelectAttrValue("name", "")
	if topic.SelectAttr("nodepath") == nil {
		return name
	}
	path := topic.SelectAttrValue("nodepath", "")
	if name == HighFrequencyTopic {
		return WaveformPrefix + path
	}
	return path
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
