// Package scenario writes and reads the demand (routes) document consumed by
// the simulator, and draws randomized training demand.
package scenario

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/samber/lo"

	"adaptive-signal-rl/internal/intersection"
)

const (
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
	routesSchema = "http://sumo.dlr.de/xsd/routes_file.xsd"

	flowBegin = 0.0
	flowEnd   = 86400.0
)

var (
	ErrNoFlows      = errors.New("routes document defines no flows")
	ErrUnknownRoute = errors.New("flow references an unknown route")
)

type Routes struct {
	XMLName  xml.Name `xml:"routes"`
	XSI      string   `xml:"xmlns:xsi,attr,omitempty"`
	Location string   `xml:"xsi:noNamespaceSchemaLocation,attr,omitempty"`
	Routes   []Route  `xml:"route"`
	Flows    []Flow   `xml:"flow"`
}

type Route struct {
	ID    string `xml:"id,attr"`
	Edges string `xml:"edges,attr"`
	Color string `xml:"color,attr,omitempty"`
}

type Flow struct {
	ID          string  `xml:"id,attr"`
	Begin       float64 `xml:"begin,attr"`
	End         float64 `xml:"end,attr"`
	Route       string  `xml:"route,attr"`
	VehsPerHour float64 `xml:"vehsPerHour,attr"`
}

// EdgeFlow is a flow resolved to the first and last edge of its route.
type EdgeFlow struct {
	Incoming    string
	Outgoing    string
	VehsPerHour float64
	Begin       float64
	End         float64
}

// Demand assigns a flow rate in vehicles per hour to each approach by name.
type Demand map[string]float64

// Build produces one route and one flow per approach, in layout order.
func Build(layout intersection.Layout, demand Demand) Routes {
	doc := Routes{XSI: xsiNamespace, Location: routesSchema}
	for i, a := range layout.Approaches {
		routeID := fmt.Sprintf("route_%d", i)
		doc.Routes = append(doc.Routes, Route{
			ID:    routeID,
			Edges: a.Incoming + " " + a.Outgoing,
			Color: "yellow",
		})
		doc.Flows = append(doc.Flows, Flow{
			ID:          "flow_" + a.Name,
			Begin:       flowBegin,
			End:         flowEnd,
			Route:       routeID,
			VehsPerHour: demand[a.Name],
		})
	}
	return doc
}

func Encode(w io.Writer, doc Routes) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode routes: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func WriteFile(path string, layout intersection.Layout, demand Demand) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create routes file: %w", err)
	}
	if err := Encode(f, Build(layout, demand)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func Decode(r io.Reader) (Routes, error) {
	var doc Routes
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Routes{}, fmt.Errorf("failed to decode routes: %w", err)
	}
	return doc, nil
}

func Load(path string) (Routes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Routes{}, fmt.Errorf("failed to open routes file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// EdgeFlows resolves every flow to its route's boundary edges.
func (r Routes) EdgeFlows() ([]EdgeFlow, error) {
	if len(r.Flows) == 0 {
		return nil, ErrNoFlows
	}
	routes := lo.SliceToMap(r.Routes, func(rt Route) (string, []string) {
		return rt.ID, strings.Fields(rt.Edges)
	})
	out := make([]EdgeFlow, 0, len(r.Flows))
	for _, f := range r.Flows {
		edges, ok := routes[f.Route]
		if !ok || len(edges) == 0 {
			return nil, fmt.Errorf("%w: flow %s route %s", ErrUnknownRoute, f.ID, f.Route)
		}
		out = append(out, EdgeFlow{
			Incoming:    edges[0],
			Outgoing:    edges[len(edges)-1],
			VehsPerHour: f.VehsPerHour,
			Begin:       f.Begin,
			End:         f.End,
		})
	}
	return out, nil
}

// FlowRange is a half-open interval [Min, Max) of vehicles per hour.
type FlowRange struct {
	Min int
	Max int
}

func (fr FlowRange) draw(rng *rand.Rand) float64 {
	if fr.Max <= fr.Min {
		return float64(fr.Min)
	}
	return float64(fr.Min + rng.Intn(fr.Max-fr.Min))
}

// Draw picks one high rate shared by the major approaches and one low rate
// shared by the rest.
func Draw(rng *rand.Rand, layout intersection.Layout, major []string, high, low FlowRange) Demand {
	highRate := high.draw(rng)
	lowRate := low.draw(rng)
	demand := make(Demand, len(layout.Approaches))
	for _, a := range layout.Approaches {
		if lo.Contains(major, a.Name) {
			demand[a.Name] = highRate
		} else {
			demand[a.Name] = lowRate
		}
	}
	return demand
}
