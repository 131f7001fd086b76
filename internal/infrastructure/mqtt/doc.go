// Package mqtt mirrors printer state onto an MQTT broker.
//
// Topics live under mqtt.topic_prefix (default "printwatch"):
//
//	<prefix>/printer/state    retained, latest printer and job state
//	<prefix>/printer/events   one message per state transition
//	<prefix>/bot/presence     retained online/offline, also the last will
//
// Connect waits for the first connection; after that paho reconnects on
// its own and the online presence is republished each time.
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithVersion(version))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	w.AddObserver(mqtt.NewStatePublisher(client, client.Topics(), client.QoS()))
package mqtt
