// Package extract turns upstream item payloads and listing pages into a
// single price. All functions are pure: no I/O, no shared state.
package extract

// Payload is either a decoded JSON object or a raw HTML document.
type Payload struct {
	JSON map[string]any
	HTML string
}

func JSONPayload(obj map[string]any) Payload {
	return Payload{JSON: obj}
}

func HTMLPayload(html string) Payload {
	return Payload{HTML: html}
}

// Price returns a positive price, or 0 when none could be found.
func Price(p Payload) float64 {
	if p.JSON != nil {
		return FromJSON(p.JSON)
	}
	return FromHTML(p.HTML)
}
