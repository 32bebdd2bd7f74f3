package catalog

import "strings"

// Render returns a copy of r with {{name}} placeholders replaced by vars in
// user-visible text: body text, button and option labels, card titles and
// subtitles. Payloads and URLs are never rewritten. Unknown placeholders
// are left as written. r itself is not modified.
func Render(r *Response, vars map[string]string) *Response {
	out := r.Clone()
	if len(vars) == 0 {
		return out
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	rep := strings.NewReplacer(pairs...)

	out.Text = rep.Replace(out.Text)
	for i := range out.Buttons {
		out.Buttons[i].Label = rep.Replace(out.Buttons[i].Label)
	}
	for i := range out.Options {
		out.Options[i].Label = rep.Replace(out.Options[i].Label)
	}
	for i := range out.Cards {
		card := &out.Cards[i]
		card.Title = rep.Replace(card.Title)
		card.Subtitle = rep.Replace(card.Subtitle)
		for j := range card.Buttons {
			card.Buttons[j].Label = rep.Replace(card.Buttons[j].Label)
		}
	}
	if out.Media != nil {
		for i := range out.Media.Buttons {
			out.Media.Buttons[i].Label = rep.Replace(out.Media.Buttons[i].Label)
		}
	}
	return out
}
