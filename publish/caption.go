package publish

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/txt"
)

// Instagram rejects captions over this many characters.
const maxCaptionLen = 2200

// Caption builds the post caption from a release folder's text file. Price
// lines never make it into the caption unless the operator passes an asking
// price explicitly; a caption file overrides the whole thing.
func Caption(txtPath, captionFilePath, price string) (string, error) {
	if captionFilePath != "" {
		data, err := os.ReadFile(captionFilePath)
		if nil != err {
			flawP := flaw.P{"path": captionFilePath, "err_debug_tree": errutil.Tree(err).FlawP()}
			return "", flaw.From(fmt.Errorf("failed to read caption file: %v", err)).Append(flawP)
		}
		return truncateCaption(strings.TrimSpace(string(data))), nil
	}

	data, err := os.ReadFile(txtPath)
	if nil != err {
		flawP := flaw.P{"path": txtPath, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", flaw.From(fmt.Errorf("failed to read release text file: %v", err)).Append(flawP)
	}

	body, _ := txt.StripPriceLines(string(data))
	if price != "" {
		body += "\n\n\U0001F4B2 Price: " + price
	}
	return truncateCaption(body), nil
}

func truncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= maxCaptionLen {
		return caption
	}
	const ellipsis = "…"
	return string(runes[:maxCaptionLen-1]) + ellipsis
}

func partCaption(caption string, part, total int) string {
	if total <= 1 {
		return caption
	}
	return truncateCaption(fmt.Sprintf("%s\n\nPart %d/%d", caption, part, total))
}
