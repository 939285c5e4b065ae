package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"borsabot/internal/market"
	"borsabot/internal/notify"
	"borsabot/internal/store"
	kit "borsabot/internal/transport"
	logx "borsabot/pkg/logx"
)

const (
	txtWelcome = "Hoş geldin! Konya Ticaret Borsasından anlık fiyatları öğrenmek için doğru " +
		"yerdesin. /fiyatlar komutu ile fiyatları öğrenebilirsin.\n\n" +
		"Daha fazla komut için /yardim 'a göz atmayı unutma!"

	txtHelp = "/fiyatlar - Anlık fiyat tablosu\n" +
		"/son_7_gun - Son 7 güne ait ortalama fiyat grafiği\n" +
		"/son_15_gun - Son 15 güne ait ortalama fiyat grafiği\n" +
		"/son_30_gun - Son 30 güne ait ortalama fiyat grafiği\n" +
		"/bildirim_kapat - Otomatik bildirimleri kapat\n" +
		"/bildirim_ac - Otomatik bildirimleri aç\n" +
		"/bagis - Geliştiriciye bağış yap"

	txtFeedDown = "Bizden kaynaklı olmayan sebeplerden ötürü borsa sunucularına " +
		"ulaşılamıyor, lütfen daha sonra tekrar deneyin."
	txtNoPrices = "Şu anda fiyat bilgisi bulunmamaktadır."

	txtDNDOn = "Bundan sonra otomatik fiyat bildirimi göndermeyeceğim. Tekrardan açmak " +
		"için /bildirim_ac komutunu kullan!"
	txtDNDAlreadyOn = "Sana zaten otomatik bir şekilde fiyat tablosunu göndermiyorum. Açmak " +
		"istiyorsan /bildirim_ac komutunu kullanabilirsin."
	txtDNDOff = "Tamamdır, seni de abone listesine ekledim! Bundan sonra günlük mesaj " +
		"göndereceğim fiyatlar hakkında!"
	txtDNDAlreadyOff = "Sana zaten günlük fiyat tablosunu gönderiyorum. Kapatmak istiyorsan " +
		"/bildirim_kapat komutunu kullanabilirsin."
	txtStartFirst = "Seni tanımıyorum, önce /start komutunu kullanmalısın."

	txtDonate = "@konyaticaretborsasi_bot deneyiminden memnunsan geliştiriciye atıştırmalık bir şey alabilirsin!\n\n" +
		"<b>₺:</b> <code>TR84 0011 1000 0000 0109 3410 82</code>\n" +
		"<b>$:</b> <code>TR36 0011 1000 0000 0113 1638 43</code>\n" +
		"<b>€:</b> <code>TR68 0011 1000 0000 0113 1638 49</code>\n\n" +
		"Enpara: <code>Furkan Şimşekli</code>"

	txtNotAuthorized = "Bu komutu kullanmak için yetkin yok!"

	txtAnnouncePrompt = "Tamamdır, duyurmak istediğin mesajı bekliyorum. " +
		"Vazgeçmek istersen /bitir komutunu kullanabilirsin."
	txtAnnounceRestart = "Zaten bir duyuru bekliyordum, süreyi yeniden başlattım. " +
		"Mesajını yazabilirsin."
	txtAnnounceCancelled = "Tamamdır, duyuru iptal edildi."
	txtAnnounceNone      = "Şu anda bekleyen bir duyuru yok."
	txtAnnounceExpired   = "Duyuru mesajını beklemekten vazgeçtim. İstersen /duyuru ile " +
		"tekrar başlayabilirsin."
)

type PriceSource interface {
	Fetch(ctx context.Context) (map[string]market.GroupSnapshot, error)
}

type HistorySource interface {
	RecentDays(ctx context.Context, n int) ([]string, error)
	History(ctx context.Context, days []string) ([]market.GroupSnapshot, error)
}

type SubscriberDirectory interface {
	Find(ctx context.Context, id int64) (*store.Subscriber, error)
	Create(ctx context.Context, sub store.Subscriber) error
	Reactivate(ctx context.Context, id int64) error
	SetDND(ctx context.Context, id int64, dnd bool) error
	ListActive(ctx context.Context) ([]store.Subscriber, error)
}

type Announcer interface {
	Broadcast(ctx context.Context, text string, recipients []store.Subscriber) notify.Report
}

// Commands bundles the bot's command handlers with their dependencies and the
// announcement conversation.
type Commands struct {
	feed    PriceSource
	history HistorySource
	subs    SubscriberDirectory
	fanout  Announcer
	conv    *Conversation
	log     logx.Logger
}

func NewCommands(feed PriceSource, history HistorySource, subs SubscriberDirectory, fanout Announcer, awaitTimeout time.Duration, log logx.Logger) *Commands {
	return &Commands{
		feed:    feed,
		history: history,
		subs:    subs,
		fanout:  fanout,
		conv:    NewConversation(awaitTimeout, nil, log),
		log:     log,
	}
}

// Mount registers every command on the router and wires the announcement
// conversation into its text fallback and command observer.
func (c *Commands) Mount(r *Router) {
	adminChat := kit.ChatTarget{ChatID: r.AdminID()}
	c.conv.onExpire = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.adapter.SendText(ctx, adminChat, txtAnnounceExpired, nil)
	}

	r.Register(
		Command{Name: "start", Description: "botu başlat", Handle: c.Start},
		Command{Name: "yardim", Description: "komut listesi", Handle: c.Help},
		Command{Name: "fiyatlar", Description: "anlık fiyat tablosu", Timeout: 15 * time.Second, Handle: c.Prices},
		Command{Name: "son_7_gun", Description: "7 günlük grafik", Timeout: 30 * time.Second, Handle: c.historyHandler(7)},
		Command{Name: "son_15_gun", Description: "15 günlük grafik", Timeout: 30 * time.Second, Handle: c.historyHandler(15)},
		Command{Name: "son_30_gun", Description: "30 günlük grafik", Timeout: 30 * time.Second, Handle: c.historyHandler(30)},
		Command{Name: "bildirim_kapat", Description: "bildirimleri kapat", Handle: c.DisableNotifier},
		Command{Name: "bildirim_ac", Description: "bildirimleri aç", Handle: c.EnableNotifier},
		Command{Name: "bagis", Description: "bağış bilgisi", Handle: c.Donate},
		Command{Name: "duyuru", Description: "duyuru başlat", Access: AccessAdminOnly, Handle: c.BeginAnnouncement},
		Command{Name: "bitir", Description: "duyuruyu iptal et", Access: AccessAdminOnly, Handle: c.FinishAnnouncement},
	)

	admin := r.AdminID()
	// Any command from any sender closes a pending draft; only the flow's own
	// commands are exempt. Plain text stays admin-only below.
	r.SetCommandObserver(func(fromID int64, command string) {
		if command == "duyuru" || command == "bitir" {
			return
		}
		if c.conv.Interrupt() {
			c.log.Info("pending announcement discarded",
				logx.String("cmd", command), logx.Int64("from_id", fromID))
		}
	})
	r.SetTextHandler(func(ctx context.Context, msg *kit.Message) bool {
		if msg.FromID != admin || msg.IsGroup {
			return false
		}
		if !c.conv.Take() {
			return false
		}
		c.deliverAnnouncement(ctx, r.adapter, adminChat, msg.Text)
		return true
	})
}

func (c *Commands) Start(ctx context.Context, req *Request) error {
	msg := req.Update.Message
	sub, err := c.subs.Find(ctx, msg.FromID)
	if err != nil {
		return err
	}
	switch {
	case sub == nil:
		err = c.subs.Create(ctx, store.Subscriber{
			ID:        msg.FromID,
			FirstName: msg.FromFirst,
			LastName:  msg.FromLast,
			Username:  msg.FromUsername,
			Language:  msg.Language,
			Active:    true,
		})
		if err != nil {
			return err
		}
	case !sub.Active:
		if err := c.subs.Reactivate(ctx, sub.ID); err != nil {
			return err
		}
		req.Logger.Info("subscriber reactivated")
	}
	return req.Adapter.SendText(ctx, req.Chat, txtWelcome, nil)
}

func (c *Commands) Help(ctx context.Context, req *Request) error {
	return req.Adapter.SendText(ctx, req.Chat, txtHelp, nil)
}

func (c *Commands) Prices(ctx context.Context, req *Request) error {
	groups, err := c.feed.Fetch(ctx)
	if errors.Is(err, market.ErrFeedUnavailable) {
		req.Logger.Warn("bulletin feed unavailable", logx.Err(err))
		return req.Adapter.SendText(ctx, req.Chat, txtFeedDown, nil)
	}
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return req.Adapter.SendText(ctx, req.Chat, txtNoPrices, nil)
	}
	return req.Adapter.SendText(ctx, req.Chat, market.PriceListHTML(groups), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
}

func (c *Commands) historyHandler(days int) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		noData := fmt.Sprintf("%d günlük veri mevcut değil!", days)

		recent, err := c.history.RecentDays(ctx, days)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			return req.Adapter.SendText(ctx, req.Chat, noData, nil)
		}
		records, err := c.history.History(ctx, recent)
		if err != nil {
			return err
		}
		png, err := market.RenderHistoryChart(records, days)
		if errors.Is(err, market.ErrNoHistory) {
			return req.Adapter.SendText(ctx, req.Chat, noData, nil)
		}
		if err != nil {
			return err
		}
		return req.Adapter.SendPhoto(ctx, req.Chat, png, "")
	}
}

func (c *Commands) DisableNotifier(ctx context.Context, req *Request) error {
	sub, err := c.subs.Find(ctx, req.FromID)
	if err != nil {
		return err
	}
	if sub == nil {
		return req.Adapter.SendText(ctx, req.Chat, txtStartFirst, nil)
	}
	if sub.DND {
		return req.Adapter.SendText(ctx, req.Chat, txtDNDAlreadyOn, nil)
	}
	if err := c.subs.SetDND(ctx, sub.ID, true); err != nil {
		return err
	}
	return req.Adapter.SendText(ctx, req.Chat, txtDNDOn, nil)
}

func (c *Commands) EnableNotifier(ctx context.Context, req *Request) error {
	sub, err := c.subs.Find(ctx, req.FromID)
	if err != nil {
		return err
	}
	if sub == nil {
		return req.Adapter.SendText(ctx, req.Chat, txtStartFirst, nil)
	}
	if !sub.DND {
		return req.Adapter.SendText(ctx, req.Chat, txtDNDAlreadyOff, nil)
	}
	if err := c.subs.SetDND(ctx, sub.ID, false); err != nil {
		return err
	}
	return req.Adapter.SendText(ctx, req.Chat, txtDNDOff, nil)
}

func (c *Commands) Donate(ctx context.Context, req *Request) error {
	return req.Adapter.SendText(ctx, req.Chat, txtDonate, &kit.SendOptions{ParseMode: "HTML"})
}

func (c *Commands) BeginAnnouncement(ctx context.Context, req *Request) error {
	if c.conv.Begin() {
		return req.Adapter.SendText(ctx, req.Chat, txtAnnounceRestart, nil)
	}
	return req.Adapter.SendText(ctx, req.Chat, txtAnnouncePrompt, nil)
}

func (c *Commands) FinishAnnouncement(ctx context.Context, req *Request) error {
	if c.conv.Finish() {
		return req.Adapter.SendText(ctx, req.Chat, txtAnnounceCancelled, nil)
	}
	return req.Adapter.SendText(ctx, req.Chat, txtAnnounceNone, nil)
}

func (c *Commands) deliverAnnouncement(ctx context.Context, adapter kit.Adapter, adminChat kit.ChatTarget, text string) {
	recipients, err := c.subs.ListActive(ctx)
	if err != nil {
		c.log.Error("announcement recipient query failed", logx.Err(err))
		_ = adapter.SendText(ctx, adminChat, "Duyuru gönderilemedi, abone listesi okunamadı.", nil)
		return
	}
	rep := c.fanout.Broadcast(ctx, text, recipients)

	summary := fmt.Sprintf("Duyuru %d aboneye iletildi.", rep.Delivered)
	if n := len(rep.Deactivated); n > 0 {
		summary += fmt.Sprintf(" %d ulaşılamayan abone listeden çıkarıldı.", n)
	}
	if rep.Transient > 0 {
		summary += fmt.Sprintf(" %d aboneye geçici bir hata yüzünden iletilemedi.", rep.Transient)
	}
	_ = adapter.SendText(ctx, adminChat, summary, nil)
}
