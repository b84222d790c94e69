package whatsapp

import (
	"encoding/json"
	"fmt"
)

// Page states reported by probeScript.
const (
	stateLoading = "loading"
	stateQR      = "qr"
	stateReady   = "ready"
)

const probeScript = `(() => {
	if (document.querySelector('#pane-side')) return {state: 'ready'};
	const qr = document.querySelector('div[data-ref]');
	if (qr) return {state: 'qr', ref: qr.getAttribute('data-ref') || ''};
	return {state: 'loading'};
})()`

const qrSelector = `div[data-ref] canvas`

// injectScript exposes the web client's collections as window.WABot and
// queues incoming messages in WABot.inbox. It is idempotent and returns
// false while the client modules are not loaded yet.
const injectScript = `(() => {
	if (window.WABot) return true;
	if (typeof window.require !== 'function') return false;
	try {
		const col = window.require('WAWebCollections');
		const bot = {
			Chat: col.Chat,
			Msg: col.Msg,
			Cmd: window.require('WAWebCmd').Cmd,
			Conn: window.require('WAWebConnModel').Conn,
			inbox: [],
		};
		col.Msg.on('add', (m) => {
			if (!m || !m.isNewMsg || (m.id && m.id.fromMe)) return;
			const from = m.from && m.from._serialized ? m.from._serialized : String(m.from);
			bot.inbox.push({from: from, body: m.body || '', t: m.t || 0});
		});
		window.WABot = bot;
		return true;
	} catch (e) {
		return false;
	}
})()`

const drainInboxScript = `(() => {
	if (!window.WABot) return [];
	const q = window.WABot.inbox;
	window.WABot.inbox = [];
	return q;
})()`

const accountScript = `(() => {
	const c = window.WABot && window.WABot.Conn;
	if (!c) return {};
	return {
		number: c.wid ? c.wid.user : '',
		name: c.pushname || '',
		platform: c.platform || '',
	};
})()`

const groupsScript = `(() => {
	if (!window.WABot) return [];
	return window.WABot.Chat.getModelsArray().filter((c) => c.isGroup).map((c) => {
		const meta = c.groupMetadata || {};
		const parts = meta.participants ? meta.participants.getModelsArray() : [];
		return {
			id: c.id._serialized,
			name: c.formattedTitle || c.name || '',
			participants: parts.length,
			description: meta.desc || '',
			read_only: !!c.isReadOnly,
			muted: !!(c.mute && c.mute.isMuted),
			created_at: meta.creation || c.t || 0,
		};
	});
})()`

const groupFunc = `((id) => {
	if (!window.WABot) return null;
	const c = window.WABot.Chat.get(id);
	if (!c || !c.isGroup) return null;
	const meta = c.groupMetadata || {};
	const parts = meta.participants ? meta.participants.getModelsArray() : [];
	return {
		id: c.id._serialized,
		name: c.formattedTitle || c.name || '',
		participants: parts.length,
		description: meta.desc || '',
		read_only: !!c.isReadOnly,
		muted: !!(c.mute && c.mute.isMuted),
		created_at: meta.creation || c.t || 0,
		owner: meta.owner ? meta.owner._serialized : '',
		members: parts.map((p) => ({
			id: p.id._serialized,
			is_admin: !!p.isAdmin,
			is_super_admin: !!p.isSuperAdmin,
		})),
	};
})`

// openChatFunc resolves to the chat title, or "" when the chat is unknown.
const openChatFunc = `(async (id) => {
	if (!window.WABot) return '';
	const c = window.WABot.Chat.get(id);
	if (!c) return '';
	await window.WABot.Cmd.openChatBottom(c);
	return c.formattedTitle || c.name || id;
})`

const composeSelector = `footer div[contenteditable="true"]`

const sendButtonSelector = `button[aria-label="Send"], span[data-icon="send"]`

// composeStateScript reports "compose" when the message box is ready and
// "invalid" when the web client rejected the number.
const composeStateScript = `(() => {
	if (document.querySelector('div[data-animate-modal-popup="true"]')) return 'invalid';
	if (document.querySelector('footer div[contenteditable="true"]')) return 'compose';
	return '';
})()`

const insertTextFunc = `((text) => {
	const box = document.querySelector('footer div[contenteditable="true"]');
	if (!box) return false;
	box.focus();
	return document.execCommand('insertText', false, text);
})`

const lastOutgoingScript = `(() => {
	const els = document.querySelectorAll('#main [data-id^="true_"]');
	return els.length ? els[els.length - 1].getAttribute('data-id') : '';
})()`

const logoutScript = `(() => {
	try {
		window.require('WAWebSocketModel').Socket.logout();
		return true;
	} catch (e) {
		return false;
	}
})()`

// call renders a function expression applied to JSON-encoded arguments.
func call(fn string, args ...any) (string, error) {
	encoded := make([]byte, 0, 64)
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument %d: %w", i, err)
		}
		if i > 0 {
			encoded = append(encoded, ',')
		}
		encoded = append(encoded, b...)
	}
	return fmt.Sprintf("(%s)(%s)", fn, encoded), nil
}
