package store

import (
	"sort"
	"sync"
)

// Lab panel names.
const (
	PanelAll        = "ALL"
	PanelPOCT       = "POCT"
	PanelHematology = "Hematology"
	PanelABG        = "ABG"
	PanelVBG        = "VBG"
	PanelBMP        = "BMP"
	PanelCBC        = "CBC"
	PanelCMP        = "CMP"
)

var basicMetabolic = []string{
	"Substance_Sodium",
	"MetabolicPanel_Potassium",
	"MetabolicPanel_Chloride",
	"MetabolicPanel_CarbonDioxide",
	"Substance_Glucose_Concentration",
	"BloodChemistry_BloodUreaNitrogen_Concentration",
	"Substance_Creatinine_Concentration",
	"Anion_Gap",
	"Substance_Ionized_Calcium",
}

// labSchema is the measurement set of every panel.
var labSchema = map[string][]string{
	PanelAll: {
		"Substance_Sodium",
		"MetabolicPanel_CarbonDioxide",
		"Substance_Glucose_Concentration",
		"BloodChemistry_BloodUreaNitrogen_Concentration",
		"Substance_Creatinine_Concentration",
		"BloodChemistry_WhiteBloodCell_Count",
		"BloodChemistry_RedBloodCell_Count",
		"Substance_Hemoglobin_Concentration",
		"BloodChemistry_Hemaocrit",
		"CompleteBloodCount_Platelet",
		"BloodChemistry_BloodPH",
		"BloodChemistry_Arterial_CarbonDioxide_Pressure",
		"BloodChemistry_Arterial_Oxygen_Pressure",
		"Substance_Bicarbonate",
		"Substance_BaseExcess",
		"Substance_Lactate_Concentration_mmol",
		"BloodChemistry_CarbonMonoxide_Saturation",
		"Anion_Gap",
		"Substance_Ionized_Calcium",
	},
	PanelPOCT: basicMetabolic,
	PanelHematology: {
		"BloodChemistry_Hemaocrit",
		"Substance_Hemoglobin_Concentration",
	},
	PanelABG: {
		"BloodChemistry_BloodPH",
		"BloodChemistry_Arterial_CarbonDioxide_Pressure",
		"BloodChemistry_Arterial_Oxygen_Pressure",
		"MetabolicPanel_CarbonDioxide",
		"Substance_Bicarbonate",
		"Substance_BaseExcess",
		"BloodChemistry_Oxygen_Saturation",
		"Substance_Lactate_Concentration_mmol",
		"BloodChemistry_CarbonMonoxide_Saturation",
	},
	PanelVBG: {
		"BloodChemistry_BloodPH",
		"BloodChemistry_Arterial_CarbonDioxide_Pressure",
		"BloodChemistry_Arterial_Oxygen_Pressure",
		"MetabolicPanel_CarbonDioxide",
		"Substance_Bicarbonate",
		"Substance_BaseExcess",
		"BloodChemistry_VenousCarbonDioxidePressure",
		"BloodChemistry_VenousOxygenPressure",
		"Substance_Lactate_Concentration_mmol",
		"BloodChemistry_CarbonMonoxide_Saturation",
	},
	PanelBMP: basicMetabolic,
	PanelCBC: {
		"BloodChemistry_WhiteBloodCell_Count",
		"BloodChemistry_RedBloodCell_Count",
		"Substance_Hemoglobin_Concentration",
		"BloodChemistry_Hemaocrit",
		"CompleteBloodCount_Platelet",
	},
	PanelCMP: {
		"Substance_Albumin_Concentration",
		"BloodChemistry_BloodUreaNitrogen_Concentration",
		"Substance_Calcium_Concentration",
		"MetabolicPanel_Chloride",
		"MetabolicPanel_CarbonDioxide",
		"Substance_Creatinine_Concentration",
		"Substance_Glucose_Concentration",
		"MetabolicPanel_Potassium",
		"Substance_Sodium",
		"MetabolicPanel_Bilirubin",
		"MetabolicPanel_Protein",
	},
}

// Panels returns the panel names in sorted order.
func Panels() []string {
	names := make([]string, 0, len(labSchema))
	for p := range labSchema {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Measurement is one named lab value.
type Measurement struct {
	Name  string
	Value float64
}

// LabStore holds the current value of every measurement in every panel.
type LabStore struct {
	mu     sync.RWMutex
	panels map[string]map[string]float64
}

// NewLabStore creates a store initialised to the default schema.
func NewLabStore() *LabStore {
	s := &LabStore{}
	s.Reset()
	return s
}

// Reset restores every panel to the default schema with all values zero.
func (s *LabStore) Reset() {
	panels := make(map[string]map[string]float64, len(labSchema))
	for panel, names := range labSchema {
		values := make(map[string]float64, len(names))
		for _, n := range names {
			values[n] = 0
		}
		panels[panel] = values
	}

	s.mu.Lock()
	s.panels = panels
	s.mu.Unlock()
}

// Update sets name to v in every panel that declares name and reports how
// many panels changed.
func (s *LabStore) Update(name string, v float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, values := range s.panels {
		if _, ok := values[name]; ok {
			values[name] = v
			n++
		}
	}
	return n
}

// Panel returns the measurements of panel sorted by name. An unknown panel
// yields ok == false.
func (s *LabStore) Panel(panel string) (measurements []Measurement, ok bool) {
	s.mu.RLock()
	values, ok := s.panels[panel]
	if ok {
		measurements = make([]Measurement, 0, len(values))
		for name, v := range values {
			measurements = append(measurements, Measurement{Name: name, Value: v})
		}
	}
	s.mu.RUnlock()

	sort.Slice(measurements, func(i, j int) bool { return measurements[i].Name < measurements[j].Name })
	return measurements, ok
}

// Value returns the value of name in panel.
func (s *LabStore) Value(panel, name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.panels[panel][name]
	return v, ok
}
