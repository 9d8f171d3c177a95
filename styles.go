package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// siteCSS is the stylesheet shipped with every export. It approximates the
// Confluence default theme closely enough that exported pages read like the
// originals, including the column layout grid and the information macros.
const siteCSS = `
/** RESET */
html, body, p, div, h1, h2, h3, h4, h5, h6, img, pre, form, fieldset, ul, ol, dl { margin: 0; padding: 0; }
img, fieldset { border: 0; }
body { color: #333; font-family: Arial, sans-serif; font-size: 14px; line-height: 1.5; background-color: #f5f5f5; }
.wiki-content { margin: 10px 0; line-height: 1.5; }
#page { margin: 0 auto; max-width: 1280px; padding: 0 10px; }
#main.aui-page-panel { background-color: #fff; border-radius: 3px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); margin: 20px 0; padding: 20px; }
#main-header { border-bottom: 1px solid #ccc; margin-bottom: 20px; padding-bottom: 10px; }
#breadcrumb-section { font-size: 12px; margin-bottom: 10px; }
#breadcrumbs { list-style: none; padding: 0; }
#breadcrumbs li { display: inline; margin-right: 5px; }
#breadcrumbs li:after { content: " > "; margin-left: 5px; }
#breadcrumbs li.first:before, #breadcrumbs li:last-child:after { content: ""; }
#title-heading.pagetitle { font-size: 24px; font-weight: normal; margin-bottom: 10px; margin-top: 0; }
.page-metadata { color: #707070; font-size: 12px; margin-bottom: 15px; padding-bottom: 10px; border-bottom: 1px solid #eee; }
.page-metadata .author, .page-metadata .editor { font-weight: bold; }
a { color: #3b73af; text-decoration: none; }
a:hover { text-decoration: underline; }
.confluenceTable { border-collapse: collapse; margin: 15px 0; width: 100%; }
.confluenceTh, .confluenceTd { border: 1px solid #ddd; padding: 8px; text-align: left; vertical-align: top; }
.confluenceTh { background-color: #f5f5f5; font-weight: bold; }
div.code.panel { border: 1px solid #ccc; background-color: #f9f9f9; padding: 0; margin: 1em 0; border-radius: 3px; }
div.codeHeader.panelHeader { padding: 5px 10px; background-color: #f0f0f0; border-bottom: 1px solid #ccc; }
div.codeContent.panelContent { padding: 10px; overflow-x: auto; }
pre.syntaxhighlighter-pre { margin: 0 !important; padding: 0 !important; font-family: monospace; font-size: 13px; line-height: 1.4; background-color: transparent !important; border: none !important; white-space: pre-wrap; word-wrap: break-word; }
.confluence-information-macro { border-radius: 3px; border-width: 1px; border-style: solid; padding: 12px; margin: 10px 0; display: flex; align-items: flex-start; }
.confluence-information-macro-icon { margin-right: 8px; flex-shrink: 0; }
.confluence-information-macro-body { flex-grow: 1; }
.confluence-information-macro-note { background-color: #e6f2ff; border-color: #b3d9ff; }
.confluence-information-macro-warning { background-color: #ffebe6; border-color: #ffc2b3; }
.confluence-information-macro-info { background-color: #f0f0f0; border-color: #cccccc; }
.confluence-information-macro-tip { background-color: #e6fff2; border-color: #b3ffcc; }
.confluence-information-macro-error { background-color: #ffebe6; border-color: #ffc2b3; }
.confluence-information-macro-success { background-color: #e6fff2; border-color: #b3ffcc; }
.aui-icon.aui-icon-small.aui-iconfont-warning, .aui-icon.aui-icon-small.aui-iconfont-error, .aui-icon.aui-icon-small.aui-iconfont-info, .aui-icon.aui-icon-small.aui-iconfont-like, .aui-icon.aui-icon-small.aui-iconfont-approve { display: inline-block; width: 16px; height: 16px; vertical-align: text-bottom; }
#footer { border-top: 1px solid #ccc; color: #707070; font-size: 12px; margin-top: 30px; padding: 20px 0; text-align: center; }
#footer-logo a { display: inline-block; margin-top: 5px; }
.pageSection.group .pageSectionHeader h2#attachments.pageSectionTitle { font-size: 18px; margin-bottom: 10px; color: #333; }
.greybox { background-color: #f9f9f9; border: 1px solid #eee; padding: 15px; border-radius: 3px; }
.greybox img { vertical-align: middle; margin-right: 5px; }
.greybox br { margin-bottom: 5px; }
.wiki-content img.confluence-embedded-image { max-width: 100%; height: auto; margin: 10px 0; }
.wiki-content span.confluence-embedded-file-wrapper { display: inline-block; margin: 10px 0; }
.wiki-content span.image-center-wrapper { text-align: center; display: block; }
.wiki-content img.image-center { margin-left: auto; margin-right: auto; display: block; }
.wiki-content h1, .wiki-content h2, .wiki-content h3, .wiki-content h4, .wiki-content h5, .wiki-content h6 { margin-top: 1.5em; margin-bottom: 0.5em; font-weight: 600; }
.wiki-content h1 { font-size: 1.8em; } .wiki-content h2 { font-size: 1.6em; } .wiki-content h3 { font-size: 1.4em; }
.wiki-content h4 { font-size: 1.2em; } .wiki-content h5 { font-size: 1.1em; } .wiki-content h6 { font-size: 1em; }
.wiki-content p { margin-bottom: 1em; }
.wiki-content ul, .wiki-content ol { margin-bottom: 1em; padding-left: 30px; }
.wiki-content ul li, .wiki-content ol li { margin-bottom: 0.25em; }
ul, ol { padding-left: 20px; }

/** Confluence column layouts */
.wiki-content .columnLayout {
    display: table;
    table-layout: fixed;
    width: 100%;
    margin-bottom: 8px;
    box-sizing: border-box;
}
.wiki-content .columnLayout:after {
    content: "";
    display: table;
    clear: both;
}
.wiki-content .cell {
    display: table-cell;
    vertical-align: top;
    padding: 0 10px;
    box-sizing: border-box;
}
.wiki-content .columnLayout > .cell:first-child {
    padding-left: 0;
}
.wiki-content .columnLayout > .cell:last-child {
    padding-right: 0;
}
.wiki-content .innerCell {
    overflow-x: auto;
    padding: 1px;
    box-sizing: border-box;
}
.wiki-content .innerCell > *:first-child {
    margin-top: 0;
}
.wiki-content .innerCell > *:last-child {
    margin-bottom: 0;
}
.wiki-content .columnLayout.two-left-sidebar .cell.aside {
    width: 29.9%;
}
.wiki-content .columnLayout.two-left-sidebar .cell.normal {
    width: 69.9%;
}
.wiki-content .columnLayout.two-right-sidebar .cell.normal {
    width: 69.9%;
}
.wiki-content .columnLayout.two-right-sidebar .cell.aside {
    width: 29.9%;
}
.wiki-content .columnLayout.two-equal .cell {
    width: 50%;
}
.wiki-content .columnLayout.three-equal .cell {
    width: 33.33%;
}
.wiki-content .columnLayout.three-with-sidebars .cell.aside {
    width: 24.9%;
}
.wiki-content .columnLayout.three-with-sidebars .cell.normal {
    width: 49.8%;
}
.wiki-content .columnLayout.three-with-sidebars > .cell:first-child,
.wiki-content .columnLayout.three-with-sidebars > .cell:last-child {
    width: 24.9%;
}
.wiki-content .columnLayout.three-with-sidebars > .cell:nth-child(2) {
    width: 49.8%;
}
.wiki-content .columnLayout.fixed-width .cell {
    width: 100%;
}
.wiki-content .table-wrap {
    margin: 10px 0 0 0;
    overflow-x: auto;
}
.wiki-content .table-wrap:first-child {
    margin-top: 0;
}
.wiki-content .confluenceTable {
    min-width: initial;
}
`

// Single-pixel placeholders for the two icons the generated markup
// references. Real exports never ship these images, so tiny stand-ins keep
// the pages self-contained.
const (
	bulletIconHex = "47494638396101000100800000000000ffffff21f90401000000002c000000000100010000020144003b"
	pageIconHex   = "89504e470d0a1a0a0000000d49484452000000010000000108060000001f15c4890000000a49444154789c63000100000500010d0a2db40000000049454e44ae426082"
)

// writeSiteCSS writes styles/site.css, leaving an identical existing file
// untouched so repeated runs do not churn timestamps.
func writeSiteCSS(outputDir string) error {
	stylesDir := filepath.Join(outputDir, "styles")
	if err := os.MkdirAll(stylesDir, 0755); err != nil {
		return fmt.Errorf("creating styles directory: %w", err)
	}
	path := filepath.Join(stylesDir, "site.css")
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, []byte(siteCSS)) {
		return nil
	}
	if err := os.WriteFile(path, []byte(siteCSS), 0644); err != nil {
		return fmt.Errorf("writing site.css: %w", err)
	}
	return nil
}

// materializeIcons creates the images/icons tree and seeds the two
// placeholder icons when missing.
func materializeIcons(outputDir string) error {
	iconsDir := filepath.Join(outputDir, "images", "icons")
	contentTypesDir := filepath.Join(iconsDir, "contenttypes")
	if err := os.MkdirAll(contentTypesDir, 0755); err != nil {
		return fmt.Errorf("creating icons directory: %w", err)
	}

	icons := []struct {
		path string
		data string
	}{
		{filepath.Join(iconsDir, "bullet_blue.gif"), bulletIconHex},
		{filepath.Join(contentTypesDir, "page_16.png"), pageIconHex},
	}
	for _, icon := range icons {
		if _, err := os.Stat(icon.path); err == nil {
			continue
		}
		data, err := hex.DecodeString(icon.data)
		if err != nil {
			return fmt.Errorf("decoding icon data: %w", err)
		}
		if err := os.WriteFile(icon.path, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", icon.path, err)
		}
	}
	return nil
}
