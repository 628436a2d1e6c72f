// internal/browser/probes.go
package browser

// modalProbeScript reports whether a dialog-like element is visibly open.
// Elements count when displayed, not hidden, more than faintly opaque and
// larger than 50x50; a visible backdrop also counts.
const modalProbeScript = `(() => {
	const modalSelectors = [
		'[role="dialog"]', '.modal', '[class*="Modal"]', '[class*="modal"]',
		'[class*="Overlay"]', '[class*="overlay"]', '[class*="Popup"]', '[class*="popup"]',
		'[class*="Drawer"]', '[class*="drawer"]', '[class*="Sheet"]', '[class*="sheet"]',
		'[data-state="open"]', '[aria-modal="true"]', '[class*="DialogContent"]', '[class*="Panel"]'
	];
	for (const selector of modalSelectors) {
		for (const el of document.querySelectorAll(selector)) {
			const style = window.getComputedStyle(el);
			const rect = el.getBoundingClientRect();
			if (style.display !== 'none' && style.visibility !== 'hidden' &&
				(style.opacity === '' || parseFloat(style.opacity) > 0.1) &&
				rect.width > 50 && rect.height > 50) {
				return true;
			}
		}
	}
	const backdrops = document.querySelectorAll('[class*="backdrop"], [class*="Backdrop"], [class*="overlay"], [class*="Overlay"]');
	for (const el of backdrops) {
		const style = window.getComputedStyle(el);
		if (style.display !== 'none' && style.visibility !== 'hidden') {
			return true;
		}
	}
	return false;
})()`

// loaderProbeScript is true when no loading indicator is displayed.
const loaderProbeScript = `(() => {
	const loaders = document.querySelectorAll('[class*="loading"], [class*="Loading"], [class*="spinner"], [class*="Spinner"]');
	for (const el of loaders) {
		if (window.getComputedStyle(el).display !== 'none') {
			return false;
		}
	}
	return true;
})()`

// webdriverMaskScript hides the automation flag some login pages refuse to serve.
const webdriverMaskScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`
