// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package normalize

// Markdown Tree-sitter Node Types
//
// Node types consumed when walking the tree-sitter-markdown block
// grammar. Inline constructs (code spans, links) are not separate
// nodes in the block grammar; they are handled by the inline scanner.
//
// Reference: https://github.com/MDeiml/tree-sitter-markdown
const (
	mdNodeDocument          = "document"
	mdNodeSection           = "section"
	mdNodeParagraph         = "paragraph"
	mdNodeAtxHeading        = "atx_heading"
	mdNodeSetextHeading     = "setext_heading"
	mdNodeBlockQuote        = "block_quote"
	mdNodeList              = "list"
	mdNodeListItem          = "list_item"
	mdNodePipeTable         = "pipe_table"
	mdNodeInline            = "inline"
	mdNodeFencedCodeBlock   = "fenced_code_block"
	mdNodeIndentedCodeBlock = "indented_code_block"
	mdNodeHTMLBlock         = "html_block"
	mdNodeLinkRefDef        = "link_reference_definition"
)
