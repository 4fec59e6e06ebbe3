package event_bus

import "urdriver/shared/data_structures"

func NewEventBus() EventBus {
	return &EventBus_t{
		subscriptions: data_structures.NewSafeMap[string, *data_structures.Set[Subscriber]](),
		handlers:      data_structures.NewSafeMap[Subscriber, SubscriberHandler](),
	}
}

func (eb *EventBus_t) Subscribe(eventType string, subscriber *Subscriber, handler SubscriberHandler) *Subscriber {
	if subscriber == nil {
		subscriber = NewSubscriber()
	}

	// Store the handler function
	eb.handlers.Set(*subscriber, handler)

	// Add subscriber to the per-type set
	set := eb.subscriptions.GetOrDefault(eventType, data_structures.NewSet[Subscriber]())
	set.Add(*subscriber)
	return subscriber
}

func (eb *EventBus_t) Unsubscribe(eventType string, subscriber *Subscriber) {
	if subscriber == nil {
		return
	}

	if set, ok := eb.subscriptions.Get(eventType); ok {
		set.Remove(*subscriber)
	}

	eb.handlers.Delete(*subscriber)
}

func (eb *EventBus_t) Publish(event Event) {
	if event == nil {
		return
	}

	if subscribers, ok := eb.subscriptions.Get(event.GetType()); ok {
		for _, sub := range subscribers.Values() {
			if handler, ok := eb.handlers.Get(sub); ok {
				go handler(event)
			}
		}
	}
}

func (eb *EventBus_t) PublishData(eventType string, data interface{}) {
	eb.Publish(NewDefaultEvent(eventType, data))
}
