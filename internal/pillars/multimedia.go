package pillars

import (
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

var genericAlt = map[string]bool{
	"image": true, "img": true, "photo": true, "picture": true, "graphic": true,
	"icon": true, "logo": true, "banner": true, "placeholder": true,
}

// descriptiveAlt reports whether alt text describes the image rather than
// naming a file or a generic noun.
func descriptiveAlt(alt string) bool {
	alt = strings.TrimSpace(alt)
	if alt == "" || filenameAlt.MatchString(alt) || genericAlt[strings.ToLower(alt)] {
		return false
	}
	return textutil.WordCount(alt) >= 2
}

func analyzeMultimedia(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Multimedia)

	images := len(doc.Images)
	descriptive := 0
	for _, img := range doc.Images {
		if descriptiveAlt(img.Alt) {
			descriptive++
		}
	}
	altRatio := ratio(float64(descriptive), float64(images))
	imgPts := ladder(float64(images), rung{3, 2}, rung{1, 1})
	if images > 0 && altRatio >= 0.8 {
		imgPts++
	}
	b.set("images", imgPts, 3)

	videoSchema := doc.HasSchemaType("VideoObject")
	b.set("video", bool1(doc.Videos > 0)+bool1(videoSchema), 2)

	tableHeaders := false
	for _, t := range doc.Tables {
		if t.HasHeaders {
			tableHeaders = true
			break
		}
	}
	b.set("tables", bool1(len(doc.Tables) > 0)+bool1(tableHeaders), 2)

	visual := map[string]bool{
		"images":   images > 0 || doc.Tags["picture"] > 0,
		"video":    doc.Videos > 0,
		"tables":   len(doc.Tables) > 0,
		"diagrams": doc.Tags["svg"] > 0 || doc.Tags["canvas"] > 0,
		"figures":  doc.Tags["figure"] > 0,
		"code":     doc.Tags["pre"] > 0 || doc.Tags["code"] > 0,
		"callouts": doc.Tags["blockquote"] > 0 || doc.Tags["aside"] > 0,
		"audio":    doc.Tags["audio"] > 0,
		"embeds":   doc.Embeds > 0,
	}
	kinds := 0
	for _, ok := range visual {
		if ok {
			kinds++
		}
	}
	b.set("variety", ladder(float64(kinds), rung{4, 3}, rung{2, 2}, rung{1, 1}), 3)

	b.detail("images", map[string]any{
		"count":             images,
		"descriptive_alt":   descriptive,
		"descriptive_ratio": round2(altRatio),
	})
	b.detail("video", map[string]any{
		"count":  doc.Videos,
		"schema": videoSchema,
	})
	b.detail("tables", map[string]any{
		"count":   len(doc.Tables),
		"headers": tableHeaders,
	})
	b.detail("variety", visual)
	return b.result()
}
