// internal/browser/scripts.go
package browser

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// jsVisible is shared by every script that reasons about visibility. An
// element counts as visible when it takes up layout space and no computed
// style hides it.
const jsVisible = `const visible = (el) => {
	if (!el || !el.isConnected) return false;
	const style = window.getComputedStyle(el);
	return el.offsetHeight !== 0 && style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
};
const textOf = (el) => ((el.innerText || el.textContent || '') + '').trim();`

// jsState reports presence, visibility, disabled state and text of the first
// match. A control inside a disabled wrapper (Bootstrap's li.page-item.disabled)
// counts as disabled.
const jsState = `(function(selector) {
	%s
	const el = document.querySelector(selector);
	if (!el) return {present: false, visible: false, disabled: false, text: ''};
	const wrapper = el.parentElement;
	const disabled = !!el.disabled ||
		el.classList.contains('disabled') ||
		el.getAttribute('aria-disabled') === 'true' ||
		(!!wrapper && wrapper.classList.contains('disabled'));
	return {present: true, visible: visible(el), disabled: disabled, text: textOf(el)};
})(%s)`

const jsTexts = `(function(selector) {
	%s
	return Array.from(document.querySelectorAll(selector)).filter(visible).map(textOf);
})(%s)`

// jsRows returns every match in document order. A row's ID is the text of its
// first cell.
const jsRows = `(function(rowSelector, badgeSelector) {
	%s
	return Array.from(document.querySelectorAll(rowSelector)).map((row, index) => {
		const cells = Array.from(row.querySelectorAll(':scope > td, :scope > th')).map(textOf);
		return {
			index: index,
			id: cells.length > 0 ? cells[0] : '',
			cells: cells,
			visible: visible(row),
			badges: Array.from(row.querySelectorAll(badgeSelector)).map((b) => ({
				classes: Array.from(b.classList),
				text: textOf(b),
				visible: visible(b)
			}))
		};
	});
})(%s, %s)`

// jsClickInRow re-resolves the row by ID on every call so that a re-rendered
// table never leaves a stale handle behind.
const jsClickInRow = `(function(rowSelector, rowID, control) {
	%s
	const row = Array.from(document.querySelectorAll(rowSelector)).find((r) => {
		const first = r.querySelector(':scope > td, :scope > th');
		return !!first && textOf(first) === rowID;
	});
	if (!row) return 'row_not_found';
	const target = row.querySelector(control);
	if (!target) return 'control_not_found';
	if (target.disabled) return 'control_disabled';
	target.scrollIntoView({block: 'center', inline: 'center'});
	target.click();
	return 'ok';
})(%s, %s, %s)`

// jsFill sets the value and fires the events frameworks listen for.
const jsFill = `(function(selector, value) {
	const el = document.querySelector(selector);
	if (!el) return false;
	el.focus();
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})(%s, %s)`

// jsSelectFirstOption picks the first enabled option with a non-empty value,
// skipping placeholders. It returns the chosen value, '' when nothing
// qualifies, or null when the select is missing.
const jsSelectFirstOption = `(function(selector) {
	const el = document.querySelector(selector);
	if (!el || !el.options) return null;
	for (const option of Array.from(el.options)) {
		if (option.disabled || option.value === '') continue;
		el.value = option.value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return option.value;
	}
	return '';
})(%s)`

const (
	clickOK              = "ok"
	clickRowNotFound     = "row_not_found"
	clickControlNotFound = "control_not_found"
	clickControlDisabled = "control_disabled"
)

func stateScript(selector string) string {
	return fmt.Sprintf(jsState, jsVisible, jsonEncode(selector))
}

func textsScript(selector string) string {
	return fmt.Sprintf(jsTexts, jsVisible, jsonEncode(selector))
}

func rowsScript(rowSelector, badgeSelector string) string {
	return fmt.Sprintf(jsRows, jsVisible, jsonEncode(rowSelector), jsonEncode(badgeSelector))
}

func clickInRowScript(rowSelector, rowID, control string) string {
	return fmt.Sprintf(jsClickInRow, jsVisible, jsonEncode(rowSelector), jsonEncode(rowID), jsonEncode(control))
}

func fillScript(selector, value string) string {
	return fmt.Sprintf(jsFill, jsonEncode(selector), jsonEncode(value))
}

func selectFirstOptionScript(selector string) string {
	return fmt.Sprintf(jsSelectFirstOption, jsonEncode(selector))
}

// jsonEncode encodes a value as a JS literal so selectors and user data can
// be embedded in a script without escaping bugs.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
