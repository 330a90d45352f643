package token

import (
	"fmt"
	"io"
	"strings"
)

// ShowExtractionGuide prints step-by-step instructions for extracting the
// bot-protection cookie from a browser session.
func ShowExtractionGuide(w io.Writer, siteURL, cookieName string) {
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintln(w, "ACCESS TOKEN EXTRACTION GUIDE")
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Native image downloads are protected by a bot-detection layer. You need")
	fmt.Fprintln(w, "to pass its browser challenge once and hand the resulting cookie to this")
	fmt.Fprintln(w, "tool. Follow these steps:")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Open the collection in your browser")
	fmt.Fprintf(w, "   - Go to %s\n", siteURL)
	fmt.Fprintln(w, "   - Open any item page and click its full-resolution download link")
	fmt.Fprintln(w, "   - Wait for the image to load; this completes the challenge")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   - Chrome/Edge/Brave: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   - Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   - Safari: enable the Develop menu in Settings, then Cmd+Option+I")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Find the cookie")
	fmt.Fprintln(w, "   1. Go to the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Fprintln(w, "   2. Expand 'Cookies' in the left sidebar and select the site")
	fmt.Fprintf(w, "   3. Find the cookie named '%s'\n", cookieName)
	fmt.Fprintln(w, "   4. Copy its ENTIRE value (everything after the = sign)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TIPS:")
	fmt.Fprintln(w, "   - Do not include quotes or semicolons")
	fmt.Fprintln(w, "   - The token expires after a while; you will be asked again when it does")
	fmt.Fprintln(w, "   - You can also save all site cookies to browser_cookies.json as a list")
	fmt.Fprintln(w, "     of {\"name\", \"value\", \"domain\"} objects and skip this prompt")
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintln(w)
}
